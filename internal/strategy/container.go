package strategy

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/use-agent/webgrabber/models"
)

// ContainerStrategy pulls an OCI image and unpacks its layers into
// output_root (spec §4.4).
type ContainerStrategy struct {
	p Params
}

// NewContainerStrategy builds a ContainerStrategy.
func NewContainerStrategy(p Params) *ContainerStrategy {
	return &ContainerStrategy{p: p}
}

// Download pulls the image referenced by s.p.URL, saves it to a local
// tarball, and extracts every layer's filesystem into output_root in the
// order the layers appear in the saved tarball, so a layer extracted
// later overwrites files from one extracted earlier.
func (s *ContainerStrategy) Download(ctx context.Context) (models.FileTree, error) {
	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}
	if err := requireTool("docker", "install Docker: https://docs.docker.com/get-docker/"); err != nil {
		return nil, err
	}

	ref := imageRefFromURL(s.p.URL)

	if s.p.Log != nil {
		s.p.Log("container: pulling %s", ref)
	}
	if _, err := runSubprocess(ctx, "docker", "pull", ref); err != nil {
		return nil, err
	}

	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}

	saveDest := filepath.Join(os.TempDir(), "webgrabber-"+sanitizeRef(ref)+".tar")
	defer os.Remove(saveDest)

	if _, err := runSubprocess(ctx, "docker", "save", "-o", saveDest, ref); err != nil {
		return nil, err
	}

	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}

	return s.extractImageTar(saveDest)
}

// imageRefFromURL strips a leading scheme from a docker://, https:// or
// bare registry URL so the remainder is a valid `docker pull` reference.
func imageRefFromURL(rawURL string) string {
	ref := rawURL
	for _, prefix := range []string{"docker://", "https://", "http://"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	return ref
}

func sanitizeRef(ref string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(ref)
}

// extractImageTar walks the outer `docker save` tarball, finds every
// layer.tar (or numbered layer blob), and extracts each one's
// filesystem into output_root in archive order so later layers
// overwrite earlier ones.
func (s *ContainerStrategy) extractImageTar(saveTarPath string) (models.FileTree, error) {
	f, err := os.Open(saveTarPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tree := make(models.FileTree)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return tree, err
		}
		if hdr.Typeflag != tar.TypeReg || !isLayerEntry(hdr.Name) {
			continue
		}

		layerBytes, err := io.ReadAll(tr)
		if err != nil {
			return tree, err
		}

		if err := extractLayer(layerBytes, s.p.OutputRoot, tree); err != nil {
			if s.p.Log != nil {
				s.p.Log("container: skipping unreadable layer %s: %v", hdr.Name, err)
			}
		}
	}
	return tree, nil
}

func isLayerEntry(name string) bool {
	return strings.HasSuffix(name, "/layer.tar") || strings.HasSuffix(name, ".tar")
}

// extractLayer writes a single (possibly gzip-compressed) layer's
// filesystem under root, recording each written path in tree.
func extractLayer(layerBytes []byte, root string, tree models.FileTree) error {
	var r io.Reader = newByteReader(layerBytes)
	if gr, err := gzip.NewReader(newByteReader(layerBytes)); err == nil {
		r = gr
		defer gr.Close()
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.HasPrefix(filepath.Base(hdr.Name), ".wh.") {
			// Whiteout marker from an overlay filesystem layer; the file
			// it names was deleted in this layer, not written.
			continue
		}

		dest := filepath.Join(root, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
			rel, relErr := filepath.Rel(root, dest)
			if relErr != nil {
				return relErr
			}
			tree[filepath.ToSlash(rel)] = "container"
		}
	}
}

type byteReaderSeeker struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReaderSeeker {
	return &byteReaderSeeker{data: data}
}

func (b *byteReaderSeeker) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
