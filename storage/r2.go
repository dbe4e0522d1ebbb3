package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"freeimages/settings"
)

var (
	ErrNotModified = errors.New("object not modified")
	ErrNotFound    = errors.New("object not found")
)

type ObjectAttribute struct {
	ETag         string
	LastModified time.Time
	ContentType  string
}

type Object struct {
	ObjectAttribute
	Body []byte
}

// Conditions turn a Get into a revalidation request.
type Conditions struct {
	IfNoneMatch     string
	IfModifiedSince time.Time
}

// R2 is a Cloudflare R2 bucket reached through the S3 API.
type R2 struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	endpoint string
}

type options struct {
	endpoint string
}

type Option func(*options)

// WithEndpoint points the client at another S3-compatible endpoint, such as
// MinIO or a test server, instead of the account's R2 endpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

func Endpoint(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", strings.TrimSpace(accountID))
}

func NewR2(ctx context.Context, cf settings.Cloudflare, opts ...Option) (*R2, error) {
	o := options{endpoint: Endpoint(cf.AccountID)}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(cf.AccessKeyID),
			strings.TrimSpace(cf.SecretAccessKey),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.BaseEndpoint = aws.String(o.endpoint)
		so.UsePathStyle = true
		so.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		so.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &R2{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   strings.TrimSpace(cf.BucketName),
		endpoint: o.endpoint,
	}, nil
}

func (r *R2) Bucket() string {
	return r.bucket
}

// EndpointHost is the host every request and signed URL of this bucket uses.
func (r *R2) EndpointHost() string {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

// PresignPut returns a URL allowing a single PUT of key with contentType
// until ttl elapses. Content-Type is part of the signature, so a PUT with any
// other type is refused by the bucket.
func (r *R2) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := r.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl), signContentType(contentType))
	if err != nil {
		return "", wrap("presign put object", err)
	}
	return req.URL, nil
}

// signContentType sets the header again once the request is built, ahead of
// the presigner, which otherwise signs only the host.
func signContentType(contentType string) func(*s3.PresignOptions) {
	return func(po *s3.PresignOptions) {
		po.ClientOptions = append(po.ClientOptions,
			s3.WithAPIOptions(smithyhttp.SetHeaderValue("Content-Type", contentType)))
	}
}

func (r *R2) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := r.client.PutObject(ctx, input); err != nil {
		return wrap("s3 put object", err)
	}
	return nil
}

func (r *R2) Get(ctx context.Context, key string, cond *Conditions) (*Object, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}
	if cond != nil {
		if cond.IfNoneMatch != "" {
			input.IfNoneMatch = aws.String(cond.IfNoneMatch)
		}
		if !cond.IfModifiedSince.IsZero() {
			input.IfModifiedSince = aws.Time(cond.IfModifiedSince)
		}
	}

	res, err := r.client.GetObject(ctx, input)
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			switch re.HTTPStatusCode() {
			case http.StatusNotModified:
				return nil, ErrNotModified
			case http.StatusNotFound:
				return nil, ErrNotFound
			}
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, wrap("s3 get object", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	obj := &Object{Body: data}
	obj.ETag = aws.ToString(res.ETag)
	obj.ContentType = aws.ToString(res.ContentType)
	if res.LastModified != nil {
		obj.LastModified = *res.LastModified
	}
	return obj, nil
}

// Error carries the store's own code and message for a failed operation.
type Error struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	e := &Error{Op: op, Message: err.Error(), Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e.Code = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			e.Message = msg
		}
	}
	return e
}
