package templates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type s3Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Params struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Loader reads template documents from a bucket. Keys under
// <prefix>/starter/ and <prefix>/advanced/ get a type hint.
type S3Loader struct {
	client s3Client
	bucket string
	prefix string
}

func NewS3Loader(client s3Client, bucket, prefix string) *S3Loader {
	return &S3Loader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// NewS3LoaderFromParams builds the aws client. A custom endpoint switches to
// path-style addressing for S3-compatible stores.
func NewS3LoaderFromParams(ctx context.Context, params S3Params) (*S3Loader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(params.Region),
		awsconfig.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if params.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Debugf("s3 template loader for bucket [%s] prefix [%s]", params.Bucket, params.Prefix)
	return NewS3Loader(client, params.Bucket, params.Prefix), nil
}

func (l *S3Loader) Load(ctx context.Context) ([]Document, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
	}
	if l.prefix != "" {
		input.Prefix = aws.String(l.prefix + "/")
	}

	var docs []Document
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list templates in [%s]: %w", l.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			format, ok := FormatForPath(key)
			if !ok || strings.HasPrefix(path.Base(key), ".") {
				continue
			}
			raw, err := l.get(ctx, key)
			if err != nil {
				log.Errorf("fetch template object [%s]: %s", key, err)
				continue
			}
			docs = append(docs, Document{
				Source:   "s3://" + l.bucket + "/" + key,
				Format:   format,
				TypeHint: l.typeHint(key),
				Raw:      raw,
			})
		}
	}
	return docs, nil
}

func (l *S3Loader) get(ctx context.Context, key string) ([]byte, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			log.Warnf("close s3 object body [%s]: %s", key, err)
		}
	}()
	return io.ReadAll(out.Body)
}

func (l *S3Loader) typeHint(key string) Type {
	rel := strings.TrimPrefix(key, l.prefix+"/")
	switch path.Dir(rel) {
	case string(TypeStarter):
		return TypeStarter
	case string(TypeAdvanced):
		return TypeAdvanced
	default:
		return ""
	}
}
