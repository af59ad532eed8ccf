package archive_test

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"osm-revert/core/archive"
	"osm-revert/core/archive/mocks"
)

func TestStore(t *testing.T) {
	t.Run("ExistingBucket", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "osm-revert").Return(true, nil)
		client.On("PutObject", mock.Anything, "osm-revert", "revert.osc", mock.Anything, int64(9), mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
			return opts.ContentType == "application/xml"
		})).Return(minio.UploadInfo{}, nil)

		archiver := archive.NewArchiver(client, archive.Config{Bucket: "osm-revert"}, zap.NewNop())

		err := archiver.Store(context.Background(), "revert.osc", []byte("<change/>"))
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("CreatesMissingBucket", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "osm-revert").Return(false, nil)
		client.On("MakeBucket", mock.Anything, "osm-revert", mock.Anything).Return(nil)
		client.On("PutObject", mock.Anything, "osm-revert", "revert.osc", mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, nil)

		archiver := archive.NewArchiver(client, archive.Config{Bucket: "osm-revert"}, zap.NewNop())

		err := archiver.Store(context.Background(), "revert.osc", []byte("<change/>"))
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("BucketCheckFails", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "osm-revert").Return(false, errors.New("unreachable"))

		archiver := archive.NewArchiver(client, archive.Config{Bucket: "osm-revert"}, zap.NewNop())

		err := archiver.Store(context.Background(), "revert.osc", []byte("<change/>"))
		assert.Error(t, err)
		client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := archive.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
		}

		client, err := archive.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithScheme", func(t *testing.T) {
		cfg := archive.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
			Region:    "us-east-1",
		}

		client, err := archive.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}
