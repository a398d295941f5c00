package exec

// Host identifies where commands run.  An empty URL (or a localhost URL)
// selects local execution; anything else is reached over SSH with credentials
// resolved through scy.
type Host struct {
	URL         string `json:"url,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

// Input represents an exec effect request
type Input struct {
	Host         *Host             `json:"host,omitempty"`
	Workdir      string            `json:"workdir,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Commands     []string          `json:"commands,omitempty"`
	TimeoutMs    int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	AbortOnError *bool             `json:"abortOnError,omitempty"`
}

func (i *Input) Init() {
	if i.Host == nil {
		i.Host = &Host{}
	}
	if i.Host.URL == "" {
		i.Host.URL = "bash://localhost/"
	}
}
