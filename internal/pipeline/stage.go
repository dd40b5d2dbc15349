package pipeline

import (
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
)

// Stage is a state of the turn state machine.
type Stage int

const (
	StageClassify Stage = iota
	StagePlan
	StageValidateRoute
	StageExecute
	StageSelectAndRespond
	StageHandleError
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageClassify:
		return "classify"
	case StagePlan:
		return "plan"
	case StageValidateRoute:
		return "validate_route"
	case StageExecute:
		return "execute"
	case StageSelectAndRespond:
		return "select_and_respond"
	case StageHandleError:
		return "handle_error"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// TurnContext is the data a turn carries from stage to stage.
type TurnContext struct {
	SessionID    string
	Message      string
	BusinessType models.BusinessType
	State        *memory.ConversationState

	Intent     models.Intent
	Proposed   []models.Action // as returned by the planner
	Actions    []models.Action // validated and routed
	Candidates []*models.CandidateResponse

	// Fatal is the first collaborator call failure; once set, the
	// remaining stages pass through to handle_error.
	Fatal error

	Response *models.FinalResponse
	Visited  []Stage
}
