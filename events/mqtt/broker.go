/*Package mqtt provides an embedded MQTT broker that pushes catalogue
change notifications to subscribed clients.

Clients authenticate with TLS client certificates; the MQTT client ID
must match the certificate common name. Clients can only subscribe to
the catalogue notification topics, they cannot publish into them.
*/
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"

	"github.com/relabs-tech/sensorhub/core"
	"github.com/relabs-tech/sensorhub/core/logger"
)

// topicPrefix is the root of all catalogue notification topics. Changes
// are published to "sensorhub/{resource}/{operation}".
const topicPrefix = "sensorhub/"

// Broker is the embedded MQTT broker. It implements core.Notifier.
type Broker struct {
	p *plugin
}

// Builder is a builder helper for the Broker
type Builder struct {
	// CACertFile is the file path to the X.509 certificate of the certificate authority.
	// This is mandatory.
	CACertFile string
	// CertFile is the file path to the X.509 certificate file. This is mandatory.
	CertFile string
	// KeyFile is the file path to the X.509 private key file. This is mandatory.
	KeyFile string
	// Addr is the TLS listen address. This is optional and defaults to ":8883".
	Addr string
}

// plugin is the plugin for GMQTT
type plugin struct {
	tlsln         net.Listener
	clientsRwmux  sync.RWMutex
	clientsByConn map[net.Conn]string

	service gmqtt.Server
}

// NewBroker returns a new broker. The broker will not actually run until
// you call Run()
func NewBroker(bb *Builder) *Broker {

	if len(bb.CACertFile) == 0 {
		panic("ca-cert file missing")
	}
	if len(bb.CertFile) == 0 {
		panic("cert file missing")
	}
	if len(bb.KeyFile) == 0 {
		panic("key file missing")
	}

	crt, err := tls.LoadX509KeyPair(bb.CertFile, bb.KeyFile)
	if err != nil {
		panic(err)
	}

	caCert, _ := os.ReadFile(bb.CACertFile)
	caCertPool := x509.NewCertPool()
	ok := caCertPool.AppendCertsFromPEM(caCert)
	logger.Default().Debugln("certs OK =", ok)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{crt},
		ClientCAs:    caCertPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	addr := bb.Addr
	if len(addr) == 0 {
		addr = ":8883"
	}
	tlsln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		panic(err)
	}

	return &Broker{
		p: &plugin{
			tlsln:         tlsln,
			clientsByConn: make(map[net.Conn]string),
		},
	}
}

// Run is blocking and runs the server. It listens on syscall.SIGTERM for
// a graceful shutdown.
func (b *Broker) Run() {

	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.p.tlsln),
		gmqtt.WithPlugin(b.p),
	)
	s.Run()

	logger.Default().Infoln("mqtt broker started")
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	s.Stop(context.Background())
	logger.Default().Infoln("mqtt broker stopped")
}

// Notify implements core.Notifier. The notification is published with
// quality level 1 to "sensorhub/{resource}/{operation}".
func (b *Broker) Notify(resource string, operation core.Operation, payload []byte) {
	if b.p.service == nil {
		return // not running yet
	}
	topic := topicPrefix + resource + "/" + string(operation)
	logger.Default().Debugf("publish on %s (%d bytes)", topic, len(payload))
	msg := gmqtt.NewMessage(topic, payload, packets.QOS_1)
	b.p.service.PublishService().Publish(msg)
}

// Load implements plugin interface
func (p *plugin) Load(service gmqtt.Server) error {
	p.service = service
	return nil
}

// Unload implements plugin interface
func (p *plugin) Unload() error {
	return nil
}

// Name implements plugin interface
func (p *plugin) Name() string { return "sensorhub broker" }

// HookWrapper implements plugin interface
func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnAcceptWrapper:     p.OnAcceptWrapper,
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
	}
}

func (p *plugin) clientFromConnection(conn net.Conn) string {
	p.clientsRwmux.RLock()
	defer p.clientsRwmux.RUnlock()
	return p.clientsByConn[conn]
}

// OnAcceptWrapper authorizes clients via TLS certificates
func (p *plugin) OnAcceptWrapper(accept gmqtt.OnAccept) gmqtt.OnAccept {
	return func(ctx context.Context, conn net.Conn) bool {
		tlsConn, ok := conn.(*tls.Conn)
		if ok {
			err := tlsConn.Handshake()
			if err != nil {
				return false
			}
			state := tlsConn.ConnectionState()
			cert := state.VerifiedChains[0][0]
			commonName := cert.Subject.CommonName

			p.clientsRwmux.Lock()
			defer p.clientsRwmux.Unlock()
			p.clientsByConn[conn] = commonName
			logger.Default().Debugln("accept", commonName)
		}
		return accept(ctx, conn)
	}
}

// OnConnectWrapper enforces that the MQTT client ID matches the certificate common name
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		commonName := p.clientFromConnection(client.Connection())
		if client.OptionsReader().ClientID() != commonName {
			logger.Default().Warnln("connect denied,", client.OptionsReader().ClientID(), "not authorized")
			return packets.CodeNotAuthorized
		}
		logger.Default().Debugln("connect", commonName)
		return connect(ctx, client)
	}
}

// OnSubscribeWrapper enforces topic policy: clients may only subscribe
// below the catalogue notification prefix
func (p *plugin) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		if !strings.HasPrefix(topic.Name, topicPrefix) {
			logger.Default().Warnln("OnSubscribe", client.OptionsReader().ClientID(), topic.Name, "denied!")
			return packets.SUBSCRIBE_FAILURE
		}
		return subscribe(ctx, client, topic)
	}
}

// OnMsgArrivedWrapper rejects client publications into the notification
// topics; only the catalogue itself publishes there
func (p *plugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		if strings.HasPrefix(msg.Topic(), topicPrefix) {
			logger.Default().Warnln("publish denied for", client.OptionsReader().ClientID(), "on", msg.Topic())
			return false
		}
		return arrived(ctx, client, msg)
	}
}
