package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name      string
		keyPrefix string
		remote    string
		runID     string
		want      string
	}{
		{"with prefix", "lambdaship/", "myapp-prod-api", "run1", "lambdaship/myapp-prod-api/run1.zip"},
		{"no prefix", "", "worker", "run2", "worker/run2.zip"},
		{"prefix without slash", "builds-", "worker", "run3", "builds-worker/run3.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.keyPrefix, tt.remote, tt.runID))
		})
	}
}

func TestNewS3Stager_RequiresBucket(t *testing.T) {
	_, err := NewS3Stager(S3Config{Endpoint: "localhost:9000"}, nil)
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestNewS3Stager_StripsScheme(t *testing.T) {
	s, err := NewS3Stager(S3Config{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "archives",
		Region:    "us-east-1",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9000", s.client.EndpointURL().Host)
	assert.Equal(t, "archives", s.bucket)
}

func TestNewS3Stager_DefaultEndpoint(t *testing.T) {
	s, err := NewS3Stager(S3Config{Bucket: "archives", UseSSL: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "s3.amazonaws.com", s.client.EndpointURL().Host)
	assert.Equal(t, "https", s.client.EndpointURL().Scheme)
}
