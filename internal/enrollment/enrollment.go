// Package enrollment loads the per-person reference images the identity
// matcher trains on. Input is a directory of per-person ZIP archives or
// subdirectories, or a single archive containing nested per-person
// archives (person name = archive stem). The loaded roster is immutable
// for the engine's lifetime.
package enrollment

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE
// 6.3.7). Registered in init() so zstd-compressed enrollment archives open
// transparently.
const zipMethodZstd uint16 = 93

func init() {
	zip.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(&errReader{err})
		}
		return zr.IOReadCloser()
	})
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

// imageExts lists the reference image formats accepted for enrollment.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ReferenceImage is one decoded enrollment photo.
type ReferenceImage struct {
	// Name is the source file name, used for stable ordering and logs.
	Name string

	Image image.Image

	// Taken is the EXIF capture time, zero when the file carries none.
	Taken time.Time
}

// Roster maps person IDs to their ordered reference images. Images are
// ordered by EXIF capture time when available, then by file name, which
// realizes the "ordered set of reference images" of the enrollment
// contract.
type Roster struct {
	people map[string][]ReferenceImage
}

// NewRoster builds a roster from in-memory images. Collaborators that
// supply enrollment through channels other than the filesystem (and
// tests) use this instead of Load.
func NewRoster(people map[string][]ReferenceImage) *Roster {
	r := &Roster{people: make(map[string][]ReferenceImage, len(people))}
	for id, imgs := range people {
		copied := append([]ReferenceImage(nil), imgs...)
		sortImages(copied)
		r.people[id] = copied
	}
	return r
}

// Persons returns the enrolled person IDs in lexicographic order.
func (r *Roster) Persons() []string {
	ids := make([]string, 0, len(r.people))
	for id := range r.people {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Images returns the ordered reference images for a person.
func (r *Roster) Images(personID string) []ReferenceImage {
	return r.people[personID]
}

// Len returns the number of enrolled persons.
func (r *Roster) Len() int {
	return len(r.people)
}

// Load reads enrollment assets from path. A directory is scanned for
// per-person ZIP archives, subdirectories, and loose image files; a .zip
// file is opened directly, with nested per-person archives extracted.
func Load(path string) (*Roster, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("enrollment path: %w", err)
	}

	r := &Roster{people: make(map[string][]ReferenceImage)}

	switch {
	case info.IsDir():
		err = r.loadDir(path)
	case strings.EqualFold(filepath.Ext(path), ".zip"):
		err = r.loadArchiveFile(path)
	default:
		err = fmt.Errorf("enrollment path is neither a directory nor a zip archive: %s", path)
	}
	if err != nil {
		return nil, err
	}

	for id := range r.people {
		sortImages(r.people[id])
	}

	total := 0
	for _, imgs := range r.people {
		total += len(imgs)
	}
	log.Info().
		Str("path", path).
		Int("persons", len(r.people)).
		Int("images", total).
		Msg("Enrollment roster loaded")

	return r, nil
}

func (r *Roster) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read enrollment directory: %w", err)
	}

	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		ext := strings.ToLower(filepath.Ext(e.Name()))

		switch {
		case e.IsDir():
			if err := r.loadPersonDir(e.Name(), full); err != nil {
				return err
			}
		case ext == ".zip":
			person := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			if err := r.loadPersonArchive(person, full); err != nil {
				return err
			}
		case imageExts[ext]:
			// Loose image: person name = file stem.
			person := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			r.addFile(person, full)
		}
	}
	return nil
}

func (r *Roster) loadPersonDir(person, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExts[strings.ToLower(filepath.Ext(path))] {
			r.addFile(person, path)
		}
		return nil
	})
}

func (r *Roster) loadPersonArchive(person, path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		r.addZipEntry(person, f)
	}
	return nil
}

// loadArchiveFile opens a single archive which may contain nested
// per-person archives, per-person folders, or loose images.
func (r *Roster) loadArchiveFile(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := f.Name
		ext := strings.ToLower(filepath.Ext(name))

		switch {
		case ext == ".zip":
			// Nested per-person archive.
			person := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
			if err := r.loadNestedArchive(person, f); err != nil {
				log.Warn().Err(err).Str("entry", name).Msg("Skipping unreadable nested archive")
			}
		case imageExts[ext]:
			person := personForEntry(name)
			r.addZipEntry(person, f)
		}
	}
	return nil
}

// personForEntry derives the person ID for a loose archive entry: the
// top-level folder name when the entry is nested, otherwise the file stem.
func personForEntry(name string) string {
	name = filepath.ToSlash(name)
	if i := strings.Index(name, "/"); i > 0 {
		return name[:i]
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (r *Roster) loadNestedArchive(person string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	nested, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}

	for _, nf := range nested.File {
		r.addZipEntry(person, nf)
	}
	return nil
}

func (r *Roster) addZipEntry(person string, f *zip.File) {
	if f.FileInfo().IsDir() || !imageExts[strings.ToLower(filepath.Ext(f.Name))] {
		return
	}

	rc, err := f.Open()
	if err != nil {
		log.Warn().Err(err).Str("entry", f.Name).Msg("Skipping unreadable archive entry")
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.Warn().Err(err).Str("entry", f.Name).Msg("Skipping unreadable archive entry")
		return
	}

	r.addBytes(person, filepath.Base(f.Name), data)
}

func (r *Roster) addFile(person, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable reference image")
		return
	}
	r.addBytes(person, filepath.Base(path), data)
}

func (r *Roster) addBytes(person, name string, data []byte) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warn().Err(err).Str("image", name).Str("person", person).Msg("Skipping undecodable reference image")
		return
	}

	r.people[person] = append(r.people[person], ReferenceImage{
		Name:  name,
		Image: img,
		Taken: captureTime(data),
	})

	log.Debug().Str("person", person).Str("image", name).Msg("Reference image loaded")
}

// captureTime extracts the EXIF capture time, zero when unavailable.
// Priority: DateTimeOriginal > CreateDate > ModifyDate.
func captureTime(data []byte) time.Time {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}
	}
	if t := exifData.DateTimeOriginal(); !t.IsZero() {
		return t
	}
	if t := exifData.CreateDate(); !t.IsZero() {
		return t
	}
	return exifData.ModifyDate()
}

// sortImages orders by capture time (images without one last), then name.
func sortImages(imgs []ReferenceImage) {
	sort.SliceStable(imgs, func(i, j int) bool {
		ti, tj := imgs[i].Taken, imgs[j].Taken
		switch {
		case !ti.IsZero() && !tj.IsZero() && !ti.Equal(tj):
			return ti.Before(tj)
		case ti.IsZero() != tj.IsZero():
			return !ti.IsZero()
		default:
			return imgs[i].Name < imgs[j].Name
		}
	})
}
