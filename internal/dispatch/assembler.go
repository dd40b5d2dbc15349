package dispatch

import (
	"maps"

	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
)

// Assemble maps the selected candidate to the final response. A structured
// format whose payload does not match degrades to a pass-through response
// flagged with metadata.payload_mismatch.
func Assemble(candidate *models.CandidateResponse, sessionID string) *models.FinalResponse {
	final := &models.FinalResponse{
		Message:      candidate.Content,
		Format:       candidate.Format,
		QuickReplies: nonNilStrings(candidate.QuickReplies),
		ListItems:    []models.Product{},
		FormFields:   []models.FormField{},
		Metadata:     cloneMetadata(candidate.Metadata),
		SessionID:    sessionID,
	}

	switch candidate.Format {
	case models.FormatCarousel:
		if p, ok := candidate.Payload.(*models.ListPayload); ok {
			final.ListItems = append(final.ListItems, p.Items...)
		} else {
			final.Metadata["payload_mismatch"] = true
		}
	case models.FormatForm:
		if p, ok := candidate.Payload.(*models.FormPayload); ok {
			final.FormFields = append(final.FormFields, p.Fields...)
		} else {
			final.Metadata["payload_mismatch"] = true
		}
	case models.FormatProductDetail:
		if p, ok := candidate.Payload.(*models.DetailPayload); ok {
			final.Metadata["product_detail"] = p.Detail
		} else {
			final.Metadata["payload_mismatch"] = true
		}
	case models.FormatComparison:
		if p, ok := candidate.Payload.(*models.ComparisonPayload); ok {
			final.Metadata["comparison"] = p.Comparison
		} else {
			final.Metadata["payload_mismatch"] = true
		}
	}
	return final
}

// AppendAssistant records the final response in the session log.
func AppendAssistant(state *memory.ConversationState, final *models.FinalResponse) models.Message {
	return state.Append(models.RoleAssistant, final.Message, cloneMetadata(final.Metadata))
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

func nonNilStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
