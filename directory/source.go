package directory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Source fetches the raw directory document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// FileSource reads the directory from the local file system.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path on every Fetch.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch reads the whole directory file.
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return data, nil
}

// Name returns the file:// location of the source.
func (s *FileSource) Name() string {
	return "file://" + s.path
}

// S3Source reads the directory from an S3 or S3-compatible object.
type S3Source struct {
	client *s3.S3
	bucket string
	key    string
	uri    string
}

// NewS3Source creates an S3 source. Without an access key the bucket is
// assumed to be publicly readable.
func NewS3Source(bucket, key, region, endpoint, accessKey, secretKey string) (*S3Source, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucket, key, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		cfg.Credentials = credentials.AnonymousCredentials
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Source{
		client: s3.New(sess),
		bucket: bucket,
		key:    key,
		uri:    uri,
	}, nil
}

// Fetch downloads the directory object.
func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get directory object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory object: %w", err)
	}
	return data, nil
}

// Name returns the s3:// location of the source without credentials.
func (s *S3Source) Name() string {
	return s.uri
}

// SourceFor creates a source from a location URI.
//
// Supported schemes:
//   - file:///absolute/path.json or file://./relative/path.json
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/key?region=us-west-2&endpoint=custom.s3.com
func SourceFor(locationURI string) (Source, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid directory location: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		path := u.Path
		if u.Host != "" {
			path = u.Host + "/" + strings.TrimPrefix(path, "/")
		}
		if path == "" {
			return nil, fmt.Errorf("empty path in file URI: %s", locationURI)
		}
		return NewFileSource(path), nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("expected s3://bucket/key, got %s", locationURI)
		}

		query := u.Query()
		region := query.Get("region")
		if region == "" {
			region = "us-east-1"
		}

		var accessKey, secretKey string
		if u.User != nil {
			accessKey = u.User.Username()
			secretKey, _ = u.User.Password()
		}
		return NewS3Source(u.Host, key, region, query.Get("endpoint"), accessKey, secretKey)
	default:
		return nil, fmt.Errorf("unsupported directory scheme: %s", u.Scheme)
	}
}

// Load fetches and parses the directory at locationURI.
func Load(ctx context.Context, locationURI string, log *slog.Logger) (*Directory, error) {
	source, err := SourceFor(locationURI)
	if err != nil {
		return nil, err
	}

	data, err := source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	d, err := Parse(data)
	if err != nil {
		return nil, err
	}

	log.Info("Loaded directory", slog.String("source", source.Name()), slog.Int("entries", d.Len()))
	return d, nil
}
