package config

type UploadConfig struct {
	AllowedMimeTypes []string
	MaxSizeMB        int64
	MaxRows          int // 0 - без лимита
}

var UploadContexts = map[string]UploadConfig{
	// xlsx - это zip-архив, DetectContentType не различает их
	"orders_xlsx": {
		AllowedMimeTypes: []string{"application/zip", "application/octet-stream"},
		MaxSizeMB:        10,
		MaxRows:          5000,
	},
}
