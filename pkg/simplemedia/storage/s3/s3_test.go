package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
	headErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}}
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeAPI) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeAPI) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeAPI) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestBackend_Key(t *testing.T) {
	b := NewWithClient(newFakeAPI(), Config{Bucket: "media"})
	assert.Equal(t, "photo/655/ab/x.jpg", b.Key("/photo/655/ab/x.jpg"))

	b = NewWithClient(newFakeAPI(), Config{Bucket: "media", Prefix: "mirror/"})
	assert.Equal(t, "mirror/photo/655/ab/x.jpg", b.Key("/photo/655/ab/x.jpg"))
}

func TestBackend_UploadExistsDelete(t *testing.T) {
	api := newFakeAPI()
	b := NewWithClient(api, Config{Bucket: "media", Encryption: "AES256"})
	ctx := context.Background()

	ok, err := b.Exists(ctx, "/photo/a.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Upload(ctx, "/photo/a.jpg", "image/jpeg", strings.NewReader("jpeg bytes")))
	assert.Equal(t, "jpeg bytes", string(api.objects["photo/a.jpg"]))
	require.Len(t, api.inputs, 1)
	assert.Equal(t, types.ServerSideEncryptionAes256, api.inputs[0].ServerSideEncryption)
	assert.Equal(t, "image/jpeg", aws.ToString(api.inputs[0].ContentType))
	assert.Equal(t, DefaultCacheControl, aws.ToString(api.inputs[0].CacheControl))

	ok, err = b.Exists(ctx, "/photo/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, "/photo/a.jpg"))
	ok, err = b.Exists(ctx, "/photo/a.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_ExistsError(t *testing.T) {
	api := newFakeAPI()
	api.headErr = errors.New("access denied")
	b := NewWithClient(api, Config{Bucket: "media"})

	_, err := b.Exists(context.Background(), "/x")
	assert.Error(t, err)
}

func TestBackend_CacheControlOverride(t *testing.T) {
	api := newFakeAPI()
	ctx := context.Background()

	b := NewWithClient(api, Config{Bucket: "media", CacheControl: "-"})
	require.NoError(t, b.Upload(ctx, "/a.jpg", "", strings.NewReader("a")))
	assert.Nil(t, api.inputs[0].CacheControl)
	assert.Nil(t, api.inputs[0].ContentType)

	b = NewWithClient(api, Config{Bucket: "media", CacheControl: "no-cache", Encryption: "aws:kms", KMSKeyID: "key-1"})
	require.NoError(t, b.Upload(ctx, "/b.jpg", "image/jpeg", strings.NewReader("b")))
	assert.Equal(t, "no-cache", aws.ToString(api.inputs[1].CacheControl))
	assert.Equal(t, types.ServerSideEncryptionAwsKms, api.inputs[1].ServerSideEncryption)
	assert.Equal(t, "key-1", aws.ToString(api.inputs[1].SSEKMSKeyId))
}
