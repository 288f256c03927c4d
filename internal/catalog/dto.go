package catalog

import "io"

// FileUpload is one image attached to a create request.
type FileUpload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// CreateProductInput carries raw form values; Price is parsed by the service.
type CreateProductInput struct {
	Name        string
	Price       string
	Description string
	Category    string
	Files       []FileUpload
}
