// Package feed normalizes the backend's duck-typed table record payloads
// into the canonical TableRecord. The backend uses several field-name
// aliases for the same value depending on endpoint and message shape; all of
// them are mapped here so nothing downstream branches on aliases.
package feed

import (
	"encoding/json"
	"strconv"
	"strings"

	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
)

var (
	tableIDAliases   = []string{"tableid", "table_id", "tid"}
	roundIDAliases   = []string{"r_id", "roundid", "round_id", "trid"}
	roundNumAliases  = []string{"roundnum", "round_no", "currentround"}
	statusAliases    = []string{"roundstatus", "round_status", "status"}
	countdownAliases = []string{"bettime", "countdown", "lefttime"}
	liveAliases      = []string{"islive", "live", "enabled"}
	resultAliases    = []string{"drawresult", "draw_result", "result"}
	minAliases       = []string{"minbet", "betmin", "limitmin"}
	maxAliases       = []string{"maxbet", "betmax", "limitmax"}
)

// NormalizeRecord maps one raw record into a TableRecord. Malformed values
// (non-numeric countdown, odd odds entries) drop the offending field only;
// the rest of the record still normalizes. Returns false when no table id is
// present, since such a record can never be attributed to a table.
func NormalizeRecord(raw map[string]interface{}) (rounddomain.TableRecord, bool) {
	var rec rounddomain.TableRecord

	rec.TableID = firstString(raw, tableIDAliases)
	if rec.TableID == "" {
		return rec, false
	}
	rec.RoundID = firstString(raw, roundIDAliases)

	if n, ok := firstInt(raw, roundNumAliases); ok && n > 0 {
		rec.RoundNumber = n
	}
	if n, ok := firstInt(raw, statusAliases); ok {
		switch rounddomain.RoundStatus(n) {
		case rounddomain.StatusBettingOpen, rounddomain.StatusFighting, rounddomain.StatusSettled:
			rec.Status = rounddomain.RoundStatus(n)
		}
	}
	if n, ok := firstInt(raw, countdownAliases); ok {
		rec.Countdown = &n
	}
	if b, ok := firstBool(raw, liveAliases); ok {
		rec.IsLive = &b
	}
	rec.Result = firstString(raw, resultAliases)

	if v, ok := firstFloat(raw, minAliases); ok {
		rec.BetLimitMin = &v
	}
	if v, ok := firstFloat(raw, maxAliases); ok {
		rec.BetLimitMax = &v
	}

	if odds, ok := raw["odds"].(map[string]interface{}); ok {
		parsed := make(map[string]float64, len(odds))
		for zone, v := range odds {
			if f, ok := asFloat(v); ok {
				parsed[strings.ToUpper(zone)] = f
			}
		}
		if len(parsed) > 0 {
			rec.Odds = parsed
		}
	}
	return rec, true
}

// ParsePush decodes a WebSocket push message. Two shapes are accepted: a
// flat array of per-table records, and an enveloped {timestamp, data:[...]}
// form. A single bare object is tolerated as a one-element array.
func ParsePush(data []byte) []rounddomain.TableRecord {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}

	var rawRecords []map[string]interface{}
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(data, &rawRecords); err != nil {
			return nil
		}
	case '{':
		var envelope struct {
			Timestamp int64                    `json:"timestamp"`
			Data      []map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.Data != nil {
			rawRecords = envelope.Data
			break
		}
		var single map[string]interface{}
		if err := json.Unmarshal(data, &single); err != nil {
			return nil
		}
		rawRecords = []map[string]interface{}{single}
	default:
		return nil
	}

	records := make([]rounddomain.TableRecord, 0, len(rawRecords))
	for _, raw := range rawRecords {
		if rec, ok := NormalizeRecord(raw); ok {
			records = append(records, rec)
		}
	}
	return records
}

func firstString(raw map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			case json.Number:
				return s.String()
			}
		}
	}
	return ""
}

func firstInt(raw map[string]interface{}, aliases []string) (int, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			if f, ok := asFloat(v); ok {
				return int(f), true
			}
		}
	}
	return 0, false
}

func firstFloat(raw map[string]interface{}, aliases []string) (float64, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			if f, ok := asFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func firstBool(raw map[string]interface{}, aliases []string) (bool, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			switch b := v.(type) {
			case bool:
				return b, true
			case float64:
				return b != 0, true
			case string:
				if parsed, err := strconv.ParseBool(b); err == nil {
					return parsed, true
				}
			}
		}
	}
	return false, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
