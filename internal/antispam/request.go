package antispam

// StaticRequest is a RequestContext built from plain values, for callers that
// receive the visitor data second-hand (job variables, queued submissions).
type StaticRequest struct {
	IP      string
	Referer string
	Agent   string
	Fields  map[string]string
}

func (r StaticRequest) UserIP() string    { return r.IP }
func (r StaticRequest) Referrer() string  { return r.Referer }
func (r StaticRequest) UserAgent() string { return r.Agent }

func (r StaticRequest) Post(name string) string {
	return r.Fields[name]
}
