// Package streaming is the append-only, per-session progress log. Events
// are durable (Redis Streams) and additionally fanned out to in-process
// subscribers so a client can follow a run live.
package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type tags one event variant on the wire.
type Type string

const (
	TypePlanningStarted          Type = "planning_started"
	TypePlanningCompleted        Type = "planning_completed"
	TypeReportStarted            Type = "report_started"
	TypeReportGenerating         Type = "report_generating"
	TypeReportGenerated          Type = "report_generated"
	TypeCoverGenerationStarted   Type = "cover_generation_started"
	TypeCoverGenerationCompleted Type = "cover_generation_completed"
	TypeResearchCompleted        Type = "research_completed"
	TypeError                    Type = "error"
)

// Event is the closed set of progress events. Exactly the structs in this
// file implement it; serialization handles every variant exhaustively.
type Event interface {
	Kind() Type
	At() time.Time
}

type PlanningStarted struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

type PlanningCompleted struct {
	Queries   []string  `json:"queries"`
	Plan      string    `json:"plan"`
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
}

type ReportStarted struct {
	Timestamp time.Time `json:"timestamp"`
}

type ReportGenerating struct {
	PartialReport string    `json:"partialReport"`
	Timestamp     time.Time `json:"timestamp"`
}

type ReportGenerated struct {
	Report    string    `json:"report"`
	Timestamp time.Time `json:"timestamp"`
}

type CoverGenerationStarted struct {
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
}

type CoverGenerationCompleted struct {
	CoverURL  string    `json:"coverImage"`
	Timestamp time.Time `json:"timestamp"`
}

type ResearchCompleted struct {
	FinalResultCount int       `json:"finalResultCount"`
	TotalIterations  int       `json:"totalIterations"`
	Timestamp        time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Message   string    `json:"message"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

func (e PlanningStarted) Kind() Type          { return TypePlanningStarted }
func (e PlanningCompleted) Kind() Type        { return TypePlanningCompleted }
func (e ReportStarted) Kind() Type            { return TypeReportStarted }
func (e ReportGenerating) Kind() Type         { return TypeReportGenerating }
func (e ReportGenerated) Kind() Type          { return TypeReportGenerated }
func (e CoverGenerationStarted) Kind() Type   { return TypeCoverGenerationStarted }
func (e CoverGenerationCompleted) Kind() Type { return TypeCoverGenerationCompleted }
func (e ResearchCompleted) Kind() Type        { return TypeResearchCompleted }
func (e ErrorEvent) Kind() Type               { return TypeError }

func (e PlanningStarted) At() time.Time          { return e.Timestamp }
func (e PlanningCompleted) At() time.Time        { return e.Timestamp }
func (e ReportStarted) At() time.Time            { return e.Timestamp }
func (e ReportGenerating) At() time.Time         { return e.Timestamp }
func (e ReportGenerated) At() time.Time          { return e.Timestamp }
func (e CoverGenerationStarted) At() time.Time   { return e.Timestamp }
func (e CoverGenerationCompleted) At() time.Time { return e.Timestamp }
func (e ResearchCompleted) At() time.Time        { return e.Timestamp }
func (e ErrorEvent) At() time.Time               { return e.Timestamp }

// Marshal serializes the event as a flat JSON object with a "type" tag.
func Marshal(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("reshape %s event: %w", e.Kind(), err)
	}
	fields["type"], _ = json.Marshal(e.Kind())
	return json.Marshal(fields)
}

// Unmarshal deserializes a tagged event object back into its variant. An
// unknown tag is an error; the set of variants is closed.
func Unmarshal(data []byte) (Event, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event tag: %w", err)
	}

	decode := func(target any) error {
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("decode %s event: %w", head.Type, err)
		}
		return nil
	}

	switch head.Type {
	case TypePlanningStarted:
		var v PlanningStarted
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypePlanningCompleted:
		var v PlanningCompleted
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeReportStarted:
		var v ReportStarted
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeReportGenerating:
		var v ReportGenerating
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeReportGenerated:
		var v ReportGenerated
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeCoverGenerationStarted:
		var v CoverGenerationStarted
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeCoverGenerationCompleted:
		var v CoverGenerationCompleted
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeResearchCompleted:
		var v ResearchCompleted
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case TypeError:
		var v ErrorEvent
		if err := decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
}
