package poller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	// ErrMalformedPayload means the response lacked data.robot or was not JSON.
	ErrMalformedPayload = errors.New("malformed fleet payload")
	// ErrUnexpectedStatus means the endpoint answered with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected fleet status code")
)

const abnormalState = "ROBOT_ABNORMAL"

// ApiResponse models the top-level structure of the fleet-status response.
// Robot entries stay raw so a bad entry can be skipped on its own.
type ApiResponse struct {
	Data *struct {
		Robot *[]json.RawMessage `json:"robot"`
	} `json:"data"`
}

// RobotRecord is one robot as reported in a single cycle.
type RobotRecord struct {
	ID             string
	HardwareState  string
	RobotType      string
	CommandTimeout bool
	RawErrors      []string
}

// Abnormal reports whether the hardware state is ROBOT_ABNORMAL.
func (r RobotRecord) Abnormal() bool {
	return r.HardwareState == abnormalState
}

func decodePayload(body []byte) ([]RobotRecord, error) {
	var resp ApiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if resp.Data == nil || resp.Data.Robot == nil {
		return nil, fmt.Errorf("%w: missing data.robot", ErrMalformedPayload)
	}

	entries := *resp.Data.Robot
	records := make([]RobotRecord, 0, len(entries))
	for i, raw := range entries {
		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
			log.Warn().Int("index", i).Msg("skipping robot entry that is not an object")
			continue
		}
		records = append(records, recordFromEntry(entry))
	}
	return records, nil
}

// recordFromEntry reads each field with a default, so a partly malformed
// entry still produces a record.
func recordFromEntry(entry map[string]any) RobotRecord {
	rec := RobotRecord{
		ID:            stringField(entry, "code", "Unknown Robot"),
		HardwareState: stringField(entry, "hardwareState", "UNKNOWN"),
		RobotType:     stringField(entry, "robotTypeCode", "UNKNOWN"),
	}
	if b, ok := entry["isCommandTimeout"].(bool); ok {
		rec.CommandTimeout = b
	}

	other, _ := entry["otherHardwareInfo"].(map[string]any)
	states, _ := other["errorState"].([]any)
	for _, s := range states {
		switch v := s.(type) {
		case map[string]any:
			if info, ok := v["info"].(string); ok {
				rec.RawErrors = append(rec.RawErrors, info)
				continue
			}
			b, _ := json.Marshal(v)
			rec.RawErrors = append(rec.RawErrors, string(b))
		case string:
			rec.RawErrors = append(rec.RawErrors, v)
		}
	}
	return rec
}

func stringField(entry map[string]any, key, def string) string {
	if s, ok := entry[key].(string); ok {
		return s
	}
	return def
}
