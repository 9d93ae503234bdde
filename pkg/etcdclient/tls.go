package etcdclient

import (
	"crypto/x509"
	"io/ioutil"

	"github.com/pkg/errors"
)

func newCertPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	data, err := ioutil.ReadFile(caFile)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read CA file %#v", caFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.Errorf("cannot parse CA file %#v", caFile)
	}
	return pool, nil
}
