package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// parseProposals decodes model output into trimmed proposals. Any bad entry
// fails the whole batch.
func parseProposals(content string) ([]Proposal, error) {
	var env struct {
		Proposals []json.RawMessage `json:"proposals"`
	}
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, fmt.Errorf("%w: response must be an object: %v", ErrInvalidProposals, err)
	}
	if env.Proposals == nil {
		return nil, fmt.Errorf("%w: response must include a proposals array", ErrInvalidProposals)
	}
	if len(env.Proposals) == 0 {
		return nil, fmt.Errorf("%w: response contained no proposals", ErrInvalidProposals)
	}

	out := make([]Proposal, 0, len(env.Proposals))
	for i, raw := range env.Proposals {
		var p struct {
			Front *string `json:"front"`
			Back  *string `json:"back"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: proposal %d must be an object", ErrInvalidProposals, i)
		}
		if p.Front == nil || p.Back == nil {
			return nil, fmt.Errorf("%w: proposal %d must include string front and back", ErrInvalidProposals, i)
		}

		front := strings.TrimSpace(*p.Front)
		back := strings.TrimSpace(*p.Back)

		if front == "" || back == "" {
			return nil, fmt.Errorf("%w: proposal %d has empty front/back", ErrInvalidProposals, i)
		}
		if utf8.RuneCountInString(front) > MaxFrontLength || utf8.RuneCountInString(back) > MaxBackLength {
			return nil, fmt.Errorf("%w: proposal %d exceeds length limits", ErrInvalidProposals, i)
		}

		out = append(out, Proposal{Front: front, Back: back, Source: SourceAIFull})
	}

	return out, nil
}
