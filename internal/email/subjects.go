package email

const (
	subjectQuoteRequestFmt = "Quote request from %s"
	subjectEscalationFmt   = "Action needed: supplier call with %s"
)
