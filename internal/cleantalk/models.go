package cleantalk

// Remote method names understood by the moderation server.
const (
	MethodCheckNewUser = "check_newuser"
	MethodCheckMessage = "check_message"
)

// Request is the payload posted to the moderation server.
type Request struct {
	MethodName     string `json:"method_name"`
	AuthKey        string `json:"auth_key"`
	Agent          string `json:"agent"`
	ResponseLang   string `json:"response_lang,omitempty"`
	SenderIP       string `json:"sender_ip"`
	SenderEmail    string `json:"sender_email"`
	SenderNickname string `json:"sender_nickname"`
	Message        string `json:"message,omitempty"`
	// SubmitTime is nil when no form start time was recorded.
	SubmitTime *int64 `json:"submit_time"`
	JSOn       int    `json:"js_on"`
	SenderInfo string `json:"sender_info,omitempty"`
}

// SenderInfo is JSON-encoded into Request.SenderInfo. The REFFERRER key
// spelling is what the moderation server expects.
type SenderInfo struct {
	Referrer  string `json:"REFFERRER"`
	UserAgent string `json:"USER_AGENT"`
	CMSLang   string `json:"cms_lang"`
}

// Response is the verdict returned by the moderation server.
type Response struct {
	Allow         int    `json:"allow"`
	Comment       string `json:"comment"`
	Inactive      int    `json:"inactive"`
	ID            string `json:"id,omitempty"`
	Errno         int    `json:"errno"`
	Errstr        string `json:"errstr,omitempty"`
	StopQueue     int    `json:"stop_queue,omitempty"`
	Spam          int    `json:"spam,omitempty"`
	JSDisabled    int    `json:"js_disabled,omitempty"`
	AccountStatus int    `json:"account_status,omitempty"`
}

func (r *Response) Allowed() bool {
	return r.Allow == 1
}

func (r *Response) NeedsApproval() bool {
	return r.Inactive == 1
}
