package mqtt

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderTopic(t *testing.T) {
	assert := require.New(t)

	topic, err := renderTopic("station/{{ .StationID }}/event/up", "0102030405060708")
	assert.NoError(err)
	assert.Equal("station/0102030405060708/event/up", topic)

	// Static topics render unchanged.
	topic, err = renderTopic("station/all/event/up", "0102030405060708")
	assert.NoError(err)
	assert.Equal("station/all/event/up", topic)

	_, err = renderTopic("station/{{ .StationID /up", "0102030405060708")
	assert.Error(err)

	_, err = renderTopic("station/{{ .NoSuchField }}/up", "0102030405060708")
	assert.Error(err)
}

func TestNewTLSConfig(t *testing.T) {
	assert := require.New(t)

	conf, err := newTLSConfig("", "", "")
	assert.NoError(err)
	assert.Nil(conf)

	_, err = newTLSConfig("does-not-exist.pem", "", "")
	assert.Error(err)

	dir, err := ioutil.TempDir("", "mqtt-tls")
	assert.NoError(err)
	defer os.RemoveAll(dir)

	caFile := filepath.Join(dir, "ca.pem")
	assert.NoError(ioutil.WriteFile(caFile, []byte("not a certificate"), 0600))
	_, err = newTLSConfig(caFile, "", "")
	assert.Error(err)
}
