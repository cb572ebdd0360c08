//go:build !unix

package module

import "os"

// checkWritable tries creating a temporary file; there is no access(2) here.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".harvest-writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
