// Package storage provides S3-compatible object storage operations used by
// the Content Store's bucket-backed backend: uploading a resource payload to
// Hetzner Object Storage and fetching one back from a MinIO-compatible
// endpoint, both with MD5-based integrity support.
package storage

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// sharedHTTPClient provides connection pooling across all storage operations.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

func endpointResolver(url string) aws.EndpointResolverWithOptionsFunc {
	return func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               url,
			SigningRegion:     region,
			HostnameImmutable: true,
		}, nil
	}
}

// MinioGetObject downloads a single object from a MinIO-compatible bucket to
// localObject, creating any missing parent directories.
func MinioGetObject(ctx context.Context, url, accessKey, secretKey, region, bucket, remoteObject, localObject string) error {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithEndpointResolverWithOptions(endpointResolver(url)),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = sharedHTTPClient
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", bucket, err)
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(remoteObject),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("object %s not found in bucket %s", remoteObject, bucket)
		}
		return fmt.Errorf("failed to get object %s from bucket %s: %w", remoteObject, bucket, err)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localObject), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", localObject, err)
	}

	file, err := os.Create(localObject)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localObject, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, result.Body); err != nil {
		return fmt.Errorf("failed to copy object content to %s: %w", localObject, err)
	}
	return nil
}

// HetznerUploadFile uploads filePath to Hetzner Cloud Storage under
// objectKey, storing an MD5 hash as object metadata for later integrity and
// change-detection checks.
func HetznerUploadFile(ctx context.Context, url, accessKey, secretKey, bucket, filePath, objectKey string) error {
	region := "eu-central"
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithEndpointResolverWithOptions(endpointResolver(url)),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = sharedHTTPClient
	})
	uploader := manager.NewUploader(client)

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	md5hash, err := CalculateMD5(filePath)
	if err != nil {
		return fmt.Errorf("failed to calculate MD5 for %s: %w", filePath, err)
	}

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(objectKey),
		Body:     file,
		Metadata: map[string]string{"md5": md5hash},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", filePath, objectKey, err)
	}
	return nil
}

// CalculateMD5 computes the hex-encoded MD5 hash of the file at path,
// streaming its content rather than buffering it in memory.
func CalculateMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate MD5 for %s: %w", path, err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
