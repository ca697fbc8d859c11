package providers

import (
	"time"

	"github.com/shopspring/decimal"
)

// saltEdgeDateLayout is the calendar-date format used by made_on fields
const saltEdgeDateLayout = "2006-01-02"

// SaltEdgeErrorResponse is the error envelope returned on non-2xx responses
type SaltEdgeErrorResponse struct {
	Error struct {
		Class   string `json:"class"`
		Message string `json:"message"`
	} `json:"error"`
}

// SaltEdgeMeta carries cursor pagination info
type SaltEdgeMeta struct {
	NextID   string `json:"next_id"`
	NextPage string `json:"next_page"`
}

// SaltEdgeConnectSessionRequest is the payload for creating a connect session
type SaltEdgeConnectSessionRequest struct {
	Data struct {
		CustomerReference string   `json:"customer_reference"`
		ReturnTo          string   `json:"return_to,omitempty"`
		Consent           struct {
			Scopes []string `json:"scopes"`
		} `json:"consent"`
	} `json:"data"`
}

// SaltEdgeConnectSessionResponse is the answer to a connect session creation
type SaltEdgeConnectSessionResponse struct {
	Data struct {
		ID         string `json:"id"`
		ConnectURL string `json:"connect_url"`
		ExpiresAt  string `json:"expires_at"`
	} `json:"data"`
}

// SaltEdgeConnectionResponse describes one provider-side connection
type SaltEdgeConnectionResponse struct {
	Data struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		LastStage    string `json:"last_attempt_stage"`
		ConsentID    string `json:"consent_id"`
		ConsentUntil string `json:"consent_expires_at"`
	} `json:"data"`
}

// SaltEdgeAccount is one account in an accounts listing
type SaltEdgeAccount struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Nature   string          `json:"nature"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency_code"`
	Extra    struct {
		IBAN string `json:"iban"`
	} `json:"extra"`
}

// SaltEdgeAccountsResponse is the answer to an accounts listing
type SaltEdgeAccountsResponse struct {
	Data []SaltEdgeAccount `json:"data"`
	Meta SaltEdgeMeta      `json:"meta"`
}

// SaltEdgeTransaction is one transaction in a transactions listing
type SaltEdgeTransaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency_code"`
	Description string          `json:"description"`
	MadeOn      string          `json:"made_on"`
	Status      string          `json:"status"`
}

// madeOnTime parses the booking date; zero time when absent or malformed
func (t SaltEdgeTransaction) madeOnTime() time.Time {
	parsed, err := time.Parse(saltEdgeDateLayout, t.MadeOn)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// SaltEdgeTransactionsResponse is the answer to a transactions listing
type SaltEdgeTransactionsResponse struct {
	Data []SaltEdgeTransaction `json:"data"`
	Meta SaltEdgeMeta          `json:"meta"`
}
