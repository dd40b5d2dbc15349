package models

// Payload is the format-specific body of a candidate response.
// Exactly one payload type corresponds to each structured format.
type Payload interface {
	Format() ResponseFormat
}

type ListPayload struct {
	Items []Product `json:"items"`
}

func (*ListPayload) Format() ResponseFormat { return FormatCarousel }

type FormPayload struct {
	Fields []FormField `json:"fields"`
}

func (*FormPayload) Format() ResponseFormat { return FormatForm }

type DetailPayload struct {
	Detail ProductDetail `json:"product_detail"`
}

func (*DetailPayload) Format() ResponseFormat { return FormatProductDetail }

type ComparisonPayload struct {
	Comparison ProductComparison `json:"comparison"`
}

func (*ComparisonPayload) Format() ResponseFormat { return FormatComparison }

// CandidateResponse is one handler's output for one action, prior to selection.
// It is never mutated after creation.
type CandidateResponse struct {
	HandlerName        string         `json:"agent_name"`
	Content            string         `json:"content"`
	Format             ResponseFormat `json:"response_format"`
	Payload            Payload        `json:"-"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	SuggestedActions   []Action       `json:"suggested_actions,omitempty"`
	QuickReplies       []string       `json:"quick_replies,omitempty"`
	NeedsClarification bool           `json:"requires_clarification"`
}

// ItemCount returns the number of list items carried by a carousel candidate.
func (c *CandidateResponse) ItemCount() int {
	if c.Format != FormatCarousel {
		return 0
	}
	if lp, ok := c.Payload.(*ListPayload); ok {
		return len(lp.Items)
	}
	return 0
}
