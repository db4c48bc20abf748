package assets

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
)

// RefPrefix is the stable path prefix under which stored assets are served.
const RefPrefix = "images"

// Store persists uploaded image binaries on disk and hands out stable path
// references. MIME filtering happens before uploads reach the store.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create asset directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the uploaded file under a collision-resistant name and returns
// the reference used for retrieval and deletion.
func (s *Store) Save(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("could not open upload: %w", err)
	}
	defer src.Close()

	name := time.Now().UTC().Format(time.RFC3339Nano) + "-" + filepath.Base(file.Filename)
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("could not create asset file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("could not write asset file: %w", err)
	}

	return path.Join(RefPrefix, name), nil
}

// Remove deletes the referenced asset. Deletion is best-effort cleanup:
// a missing file or a failed unlink is logged and never escalated.
func (s *Store) Remove(ref string) {
	rel, err := filepath.Rel(RefPrefix, ref)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		log.Warnf("Skipping removal of malformed asset ref %q", ref)
		return
	}

	if err := os.Remove(filepath.Join(s.dir, rel)); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Asset %s already removed", ref)
			return
		}
		log.Errorf("Failed to remove asset %s: %v", ref, err)
	}
}
