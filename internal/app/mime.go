package app

import (
	"log"
	"mime"
)

// servedTypes covers the embedded assets and every image type the media store
// accepts. Minimal containers ship without /etc/mime.types, and FileServer
// would otherwise sniff .css and .js as text/plain.
var servedTypes = map[string]string{
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func init() {
	for ext, typ := range servedTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			log.Printf("app: register MIME type for %s: %v", ext, err)
		}
	}
}
