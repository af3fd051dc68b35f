package graph

// EmailAddress is the name/address pair used throughout the Graph mail API.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Recipient wraps an EmailAddress the way Graph message resources do.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a message body with its content type ("text" or "html").
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Message is a Graph mail message limited to the fields the mail tools
// request via $select.
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject,omitempty"`
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty"`
	CcRecipients     []Recipient `json:"ccRecipients,omitempty"`
	BccRecipients    []Recipient `json:"bccRecipients,omitempty"`
	ReceivedDateTime string      `json:"receivedDateTime,omitempty"`
	BodyPreview      string      `json:"bodyPreview,omitempty"`
	Body             *ItemBody   `json:"body,omitempty"`
	HasAttachments   bool        `json:"hasAttachments,omitempty"`
	Importance       string      `json:"importance,omitempty"`
	IsRead           bool        `json:"isRead,omitempty"`
}

// messageList is the collection envelope returned by messages endpoints.
type messageList struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink,omitempty"`
}

// mailFolder is the subset of the mailFolder resource used for
// custom-folder resolution.
type mailFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// folderList is the collection envelope returned by the mailFolders endpoint.
type folderList struct {
	Value []mailFolder `json:"value"`
}
