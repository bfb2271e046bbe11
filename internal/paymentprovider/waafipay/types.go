package waafipay

// Значения протокола WaafiPay.
const (
	schemaVersion       = "1.0"
	channelName         = "WEB"
	serviceAuthorize    = "API_PREAUTHORIZE"
	serviceCommit       = "API_PREAUTHORIZE_COMMIT"
	paymentMethodWallet = "MWALLET_ACCOUNT"
	codeApproved        = "2001"
	commitDescription   = "PREAUTH Commited"
)

type request struct {
	SchemaVersion string        `json:"schemaVersion"`
	RequestID     string        `json:"requestId"`
	Timestamp     string        `json:"timestamp"`
	ChannelName   string        `json:"channelName"`
	ServiceName   string        `json:"serviceName"`
	ServiceParams serviceParams `json:"serviceParams"`
}

type serviceParams struct {
	MerchantUID     string           `json:"merchantUid"`
	APIUserID       string           `json:"apiUserId"`
	APIKey          string           `json:"apiKey"`
	PaymentMethod   string           `json:"paymentMethod"`
	PayerInfo       *payerInfo       `json:"payerInfo,omitempty"`
	TransactionInfo *transactionInfo `json:"transactionInfo,omitempty"`
	TransactionID   string           `json:"transactionId,omitempty"`
	Description     string           `json:"description,omitempty"`
	ReferenceID     string           `json:"referenceId,omitempty"`
}

type payerInfo struct {
	AccountNo string `json:"accountNo"`
}

type transactionInfo struct {
	ReferenceID string `json:"referenceId"`
	InvoiceID   string `json:"invoiceId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type response struct {
	ResponseCode string `json:"responseCode"`
	ErrorCode    string `json:"errorCode"`
	ResponseMsg  string `json:"responseMsg"`
	Params       struct {
		TransactionID string `json:"transactionId"`
		State         string `json:"state"`
		ReferenceID   string `json:"referenceId"`
	} `json:"params"`
}
