//go:build sdio_notext

package pkg

// statusText always returns "" when status texts are compiled out.
func statusText(Status) string {
	return ""
}
