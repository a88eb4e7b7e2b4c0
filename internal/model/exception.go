package model

import (
	"time"
)

// Outcome records how an exception left the open table.
type Outcome string

const (
	OutcomeResolved     Outcome = "resolved"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeInterrupted  Outcome = "interrupted"
)

// ExceptionOpen is a robot's currently open exception (hot table).
type ExceptionOpen struct {
	RobotID   string    `gorm:"primaryKey;size:64" json:"robot_id"`
	RobotType string    `gorm:"size:64;not null" json:"robot_type"`
	Category  string    `gorm:"size:32;not null" json:"category"`
	Detail    string    `gorm:"not null" json:"detail"`
	OpenedAt  time.Time `gorm:"not null" json:"opened_at"`
}

// ExceptionHistory is the append-only log of closed exceptions (cold table).
type ExceptionHistory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RobotID   string    `gorm:"size:64;not null;index" json:"robot_id"`
	RobotType string    `gorm:"size:64;not null" json:"robot_type"`
	Category  string    `gorm:"size:32;not null" json:"category"`
	Detail    string    `gorm:"not null" json:"detail"`
	OpenedAt  time.Time `gorm:"not null" json:"opened_at"`
	ClosedAt  time.Time `gorm:"not null;index" json:"closed_at"`
	Outcome   Outcome   `gorm:"size:16;not null" json:"outcome"`
	Employee  string    `gorm:"size:128" json:"employee,omitempty"`
}
