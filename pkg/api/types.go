package api

import "github.com/ssargent/visionfs/pkg/layout"

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	Bind   string
	APIKey string // Empty disables authentication
}

// FileSummary is one entry of the file listing
type FileSummary struct {
	FileName      string `json:"file_name"`
	SelectName    string `json:"select_name"`
	MinRecordSize int    `json:"min_record_size"`
	MaxRecordSize int    `json:"max_record_size"`
	NumberOfKeys  int    `json:"number_of_keys"`
	Fields        int    `json:"fields"`
}

func summarize(def *layout.FileDefinition) FileSummary {
	return FileSummary{
		FileName:      def.FileName,
		SelectName:    def.SelectName,
		MinRecordSize: def.MinRecordSize,
		MaxRecordSize: def.MaxRecordSize,
		NumberOfKeys:  def.NumberOfKeys,
		Fields:        len(def.Layout()),
	}
}

// RecordsResponse is a page of decoded records in key order
type RecordsResponse struct {
	File     string           `json:"file"`
	KeyIndex int              `json:"key"`
	Records  []map[string]any `json:"records"`
	Count    int              `json:"count"`
}
