//go:build integration

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testAccessKey = "minioadmin"
	testSecretKey = "minioadmin"
	testRegion    = "us-east-1"
	testBucket    = "test-bucket"
)

// setupMinIOContainer starts a MinIO container for S3-compatible testing.
func setupMinIOContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     testAccessKey,
			"MINIO_ROOT_PASSWORD": testSecretKey,
		},
		Cmd: []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start MinIO container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	url := fmt.Sprintf("http://%s:%s", host, port.Port())

	err = createMinIOBucket(ctx, url, testBucket)
	require.NoError(t, err, "Failed to create test bucket")

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return url, cleanup
}

func createMinIOBucket(ctx context.Context, url, bucket string) error {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(testRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(testAccessKey, testSecretKey, "")),
		config.WithEndpointResolverWithOptions(endpointResolver(url)),
	)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	return err
}

// TestHetznerUploadFileThenMinioGetObject exercises the Content Store's
// roundtrip: upload via Hetzner's uploader, fetch back via MinioGetObject.
func TestHetznerUploadFileThenMinioGetObject(t *testing.T) {
	url, cleanup := setupMinIOContainer(t)
	defer cleanup()

	ctx := context.Background()
	tmpDir := t.TempDir()

	testContent := []byte("Hello MinIO!")
	uploadPath := filepath.Join(tmpDir, "upload.txt")
	require.NoError(t, os.WriteFile(uploadPath, testContent, 0644))

	err := HetznerUploadFile(ctx, url, testAccessKey, testSecretKey, testBucket, uploadPath, "test/upload.txt")
	require.NoError(t, err)

	downloadPath := filepath.Join(tmpDir, "download.txt")
	err = MinioGetObject(ctx, url, testAccessKey, testSecretKey, testRegion, testBucket, "test/upload.txt", downloadPath)
	require.NoError(t, err)

	downloadedContent, err := os.ReadFile(downloadPath)
	require.NoError(t, err)
	assert.Equal(t, testContent, downloadedContent)
}

func TestMinioGetObjectNonExistent(t *testing.T) {
	url, cleanup := setupMinIOContainer(t)
	defer cleanup()

	ctx := context.Background()
	tmpDir := t.TempDir()

	downloadPath := filepath.Join(tmpDir, "nonexistent.txt")
	err := MinioGetObject(ctx, url, testAccessKey, testSecretKey, testRegion, testBucket, "nonexistent/file.txt", downloadPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHetznerUploadFileRoundTripsMD5(t *testing.T) {
	url, cleanup := setupMinIOContainer(t)
	defer cleanup()

	ctx := context.Background()
	tmpDir := t.TempDir()

	testContent := []byte("Hetzner test content")
	filePath := filepath.Join(tmpDir, "test.txt")
	require.NoError(t, os.WriteFile(filePath, testContent, 0644))

	err := HetznerUploadFile(ctx, url, testAccessKey, testSecretKey, testBucket, filePath, "hetzner/test.txt")
	require.NoError(t, err)

	downloadPath := filepath.Join(tmpDir, "downloaded.txt")
	err = MinioGetObject(ctx, url, testAccessKey, testSecretKey, testRegion, testBucket, "hetzner/test.txt", downloadPath)
	require.NoError(t, err)

	downloadedContent, err := os.ReadFile(downloadPath)
	require.NoError(t, err)
	assert.Equal(t, testContent, downloadedContent)

	wantMD5, err := CalculateMD5(filePath)
	require.NoError(t, err)
	gotMD5, err := CalculateMD5(downloadPath)
	require.NoError(t, err)
	assert.Equal(t, wantMD5, gotMD5)
}
