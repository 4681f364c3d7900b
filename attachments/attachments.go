/*Package attachments stores device attachment files outside of the
catalogue database. There are currently two possible backends: a local
file system and AWS S3.
*/
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotExist is returned by Download when there is no attachment
// stored under the requested key.
var ErrNotExist = errors.New("attachment does not exist")

// Driver is the interface for attachment storage backends.
type Driver interface {
	// Upload stores the data under the key, replacing any previous content.
	Upload(ctx context.Context, key string, contentType string, data io.Reader) error
	// Download writes the content stored under the key to w and returns
	// its content type. It returns ErrNotExist when the key is unknown.
	Download(ctx context.Context, key string, w io.Writer) (contentType string, err error)
	// Delete removes the key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteAllWithPrefix removes all keys starting with prefix.
	DeleteAllWithPrefix(ctx context.Context, prefix string) error
}

// DriverType represents the different types of attachment drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when attachments are disabled
const None DriverType = ""

// Configuration contains the configuration for the attachment store
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem driver
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration contains the configuration for the AWS S3 driver
type S3Configuration struct {
	AWSRegion     string
	AWSBucketName string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}

// NewDriver creates the attachment driver described by the configuration.
// The driver type None yields no driver and no error; attachments are
// disabled then.
func NewDriver(config Configuration) (Driver, error) {
	switch config.DriverType {
	case DriverTypeLocal:
		if config.LocalConfiguration == nil {
			return nil, fmt.Errorf("expecting a configuration for local attachments, but got nothing")
		}
		return NewLocalFilesystem(config.LocalConfiguration.BasePath)
	case DriverTypeAWSS3:
		if config.S3Configuration == nil {
			return nil, fmt.Errorf("expecting a configuration for S3 attachments, but got nothing")
		}
		return NewS3(*config.S3Configuration)
	case None:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown attachment driver type: %s", config.DriverType)
}
