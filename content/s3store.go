package content

import (
	"context"
	"os"
	"path/filepath"

	"rmscore.evalgo.org/rmserrors"
	"rmscore.evalgo.org/storage"
)

// S3Store is an alternate Content Store backend that mirrors resource
// payloads to an S3-compatible bucket instead of (or in addition to) a
// local directory, for deployments where the kernel's process does not
// own durable local disk. It reuses the multi-cloud upload/download
// helpers rather than talking to the AWS SDK directly, so the same code
// path works against AWS S3, MinIO, or Hetzner Object Storage depending
// on the endpoint URL supplied.
type S3Store struct {
	endpoint, accessKey, secretKey, region, bucket string
	stagingDir                                     string
}

// NewS3Store returns a Content Store backed by an S3-compatible bucket.
// stagingDir holds short-lived local copies during upload/download, since
// the underlying SDK helpers operate on local file paths.
func NewS3Store(endpoint, accessKey, secretKey, region, bucket, stagingDir string) (*S3Store, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, err
	}
	return &S3Store{
		endpoint: endpoint, accessKey: accessKey, secretKey: secretKey,
		region: region, bucket: bucket, stagingDir: stagingDir,
	}, nil
}

func (s *S3Store) stagingPath(rid string) string {
	return filepath.Join(s.stagingDir, rid)
}

// Store uploads payload to the bucket under key rid.
func (s *S3Store) Store(rid string, payload []byte) error {
	local := s.stagingPath(rid)
	if err := os.WriteFile(local, payload, 0o644); err != nil {
		return err
	}
	defer os.Remove(local)
	return storage.HetznerUploadFile(context.Background(), s.endpoint, s.accessKey, s.secretKey, s.bucket, local, rid)
}

// Load downloads key rid from the bucket and returns its bytes, failing
// with rmserrors.ContentMissing when the object does not exist.
func (s *S3Store) Load(rid string) ([]byte, error) {
	local := s.stagingPath(rid)
	defer os.Remove(local)
	if err := storage.MinioGetObject(context.Background(), s.endpoint, s.accessKey, s.secretKey, s.region, s.bucket, rid, local); err != nil {
		return nil, &rmserrors.ContentMissing{ResourceID: rid}
	}
	return os.ReadFile(local)
}

// Exists downloads a probe copy to determine presence; S3-compatible
// APIs support HeadObject directly, but Load-and-discard keeps this
// backend to the same two helper calls the rest of the type uses.
func (s *S3Store) Exists(rid string) bool {
	local := s.stagingPath(rid) + ".probe"
	defer os.Remove(local)
	err := storage.MinioGetObject(context.Background(), s.endpoint, s.accessKey, s.secretKey, s.region, s.bucket, rid, local)
	return err == nil
}
