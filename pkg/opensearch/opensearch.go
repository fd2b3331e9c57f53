package opensearch

import (
	"crypto/tls"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
)

type Config struct {
	Endpoint           string `split_words:"true" default:"http://opensearch:9200"`
	Index              string `split_words:"true" default:"fintalk_documents"`
	Username           string `split_words:"true" default:"admin"`
	Password           string `split_words:"true" required:"true"`
	InsecureSkipVerify bool   `split_words:"true" default:"true"`
}

// New builds the OpenSearch client. Construction does not dial; reachability
// is verified by the health probe and surfaced per request otherwise.
func (c *Config) New() (*opensearch.Client, error) {
	return opensearch.NewClient(opensearch.Config{
		Addresses: []string{c.Endpoint},
		Username:  c.Username,
		Password:  c.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify},
		},
	})
}
