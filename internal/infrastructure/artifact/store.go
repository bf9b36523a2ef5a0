package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/infrastructure/ml"
)

// File names inside a version directory and the store root.
const (
	PointerFile  = "CURRENT"
	ModelFile    = "model.json"
	EncoderFile  = "category_encoder.json"
	FeaturesFile = "features.json"
	ManifestFile = "manifest.json"

	versionsDir = "versions"
)

// FileStore keeps every published version under root/versions/<version>
// and names the live one in root/CURRENT. A version directory only appears
// once all of its files are written, and CURRENT is replaced by rename, so
// readers see either the old triple or the new one.
type FileStore struct {
	root   string
	logger *slog.Logger
}

func NewFileStore(root string, logger *slog.Logger) *FileStore {
	return &FileStore{root: root, logger: logger}
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// Save persists bundle as a new version and makes it current. It returns
// the path of the model file.
func (s *FileStore) Save(ctx context.Context, bundle *model.ArtifactBundle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	version := bundle.Version()
	if version == "" || strings.ContainsAny(version, `/\`) || strings.HasPrefix(version, ".") {
		return "", fmt.Errorf("invalid artifact version %q", version)
	}
	if bundle.Classifier == nil || bundle.Encoder == nil {
		return "", fmt.Errorf("artifact bundle %s is incomplete", version)
	}
	if got, want := bundle.Features.Len(), bundle.Classifier.NumFeatures(); got != want {
		return "", fmt.Errorf("artifact bundle %s lists %d features but the model expects %d", version, got, want)
	}

	modelData, kind, err := ml.Marshal(bundle.Classifier)
	if err != nil {
		return "", fmt.Errorf("failed to encode model: %w", err)
	}
	manifest := bundle.Manifest
	manifest.ModelKind = kind
	manifest.FeatureCount = bundle.Features.Len()

	encoderData, err := json.MarshalIndent(bundle.Encoder, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode category encoder: %w", err)
	}
	featureData, err := json.MarshalIndent(bundle.Features, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode feature list: %w", err)
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(s.root, versionsDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	final := s.versionDir(version)
	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("artifact version %s already exists", version)
	}

	tmp, err := os.MkdirTemp(s.root, ".tmp-"+version+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	files := []struct {
		name string
		data []byte
	}{
		{ModelFile, modelData},
		{EncoderFile, encoderData},
		{FeaturesFile, featureData},
		{ManifestFile, manifestData},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := writeFileSync(filepath.Join(tmp, f.name), f.data); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to publish version directory: %w", err)
	}
	committed = true

	if err := s.writePointer(version); err != nil {
		return "", err
	}

	s.logger.Info("artifact version published",
		slog.String("version", version),
		slog.String("model_kind", kind),
		slog.Int("features", manifest.FeatureCount),
	)
	return filepath.Join(final, ModelFile), nil
}

// Load returns the bundle CURRENT points at.
func (s *FileStore) Load(ctx context.Context) (*model.ArtifactBundle, error) {
	version, err := s.CurrentVersion()
	if err != nil {
		return nil, err
	}
	return s.LoadVersion(ctx, version)
}

// CurrentVersion reads the pointer file.
func (s *FileStore) CurrentVersion() (string, error) {
	path := filepath.Join(s.root, PointerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &model.ArtifactMissingError{Artifact: PointerFile, Path: path, Err: err}
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", &model.ArtifactMissingError{Artifact: PointerFile, Path: path, Err: errors.New("pointer is empty")}
	}
	return version, nil
}

// LoadVersion loads one version and checks that its parts agree.
func (s *FileStore) LoadVersion(ctx context.Context, version string) (*model.ArtifactBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.versionDir(version)

	var manifest model.ArtifactManifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, missing(ManifestFile, dir, err)
	}

	modelPath := filepath.Join(dir, ModelFile)
	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, missing(ModelFile, dir, err)
	}
	clf, err := ml.Unmarshal(manifest.ModelKind, modelData)
	if err != nil {
		return nil, missing(ModelFile, dir, err)
	}

	encoder := &model.CategoryEncoder{}
	if err := readJSON(filepath.Join(dir, EncoderFile), encoder); err != nil {
		return nil, missing(EncoderFile, dir, err)
	}

	var features model.FeatureSchema
	if err := readJSON(filepath.Join(dir, FeaturesFile), &features); err != nil {
		return nil, missing(FeaturesFile, dir, err)
	}
	if features.Len() != clf.NumFeatures() {
		return nil, missing(FeaturesFile, dir,
			fmt.Errorf("feature list has %d names but the model expects %d", features.Len(), clf.NumFeatures()))
	}
	if manifest.FeatureCount != 0 && manifest.FeatureCount != features.Len() {
		return nil, missing(ManifestFile, dir,
			fmt.Errorf("manifest declares %d features but the list has %d", manifest.FeatureCount, features.Len()))
	}
	if manifest.Version == "" {
		manifest.Version = version
	}

	return &model.ArtifactBundle{
		Manifest:   manifest,
		Classifier: clf,
		Encoder:    encoder,
		Features:   features,
		ModelPath:  modelPath,
	}, nil
}

// Versions lists the published versions, oldest first.
func (s *FileStore) Versions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, versionsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list artifact versions: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	slices.Sort(versions)
	return versions, nil
}

func (s *FileStore) versionDir(version string) string {
	return filepath.Join(s.root, versionsDir, version)
}

func (s *FileStore) writePointer(version string) error {
	f, err := os.CreateTemp(s.root, "."+PointerFile+"-")
	if err != nil {
		return fmt.Errorf("failed to stage pointer: %w", err)
	}
	tmp := f.Name()
	if _, err := f.WriteString(version + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write pointer: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync pointer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.root, PointerFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish pointer: %w", err)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func missing(artifact, dir string, err error) error {
	return &model.ArtifactMissingError{Artifact: artifact, Path: dir, Err: err}
}
