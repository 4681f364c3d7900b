// The catalog service is the sensor metadata catalogue backend. It serves
// the visibility-filtered REST interface, gates archive and restore with
// permission rules and consistency preconditions, and fans change
// notifications out to kafka and the embedded MQTT broker.
package main

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/attachments"
	"github.com/relabs-tech/sensorhub/core"
	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/backend"
	"github.com/relabs-tech/sensorhub/core/catalog/sqlstore"
	"github.com/relabs-tech/sensorhub/core/csql"
	"github.com/relabs-tech/sensorhub/core/idl"
	"github.com/relabs-tech/sensorhub/core/logger"
	"github.com/relabs-tech/sensorhub/events"
	"github.com/relabs-tech/sensorhub/events/mqtt"
)

var configurationJSON string = `{
	"resources": [
	  {
		"resource": "device",
		"with_attachments": true
	  },
	  {
		"resource": "platform"
	  },
	  {
		"resource": "configuration"
	  }
	],
	"cors": true
  }
`

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres             string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	IdentityServiceURL   string `env:"IDL_URL,required" description:"the base url of the identity service"`
	IdentityServiceToken string `env:"IDL_TOKEN,default=" description:"the bearer token for the identity service"`
	PublicKeyDownloadURL string `env:"JWT_KEYS_URL,required" description:"the download url for JWT public keys"`
	Issuer               string `env:"JWT_ISSUER,required" description:"the accepted JWT issuer"`
	KafkaBrokers         string `env:"KAFKA_BROKERS,default=" description:"comma separated kafka brokers, empty disables kafka"`
	KafkaTopic           string `env:"KAFKA_TOPIC,default=sensorhub" description:"the kafka topic for notifications"`
	MQTTCertFile         string `env:"MQTT_CERT_FILE,default=" description:"server certificate for the MQTT broker, empty disables MQTT"`
	MQTTKeyFile          string `env:"MQTT_KEY_FILE,default=" description:"server key for the MQTT broker"`
	MQTTCACertFile       string `env:"MQTT_CA_CERT_FILE,default=" description:"certificate authority for MQTT client certificates"`
	AttachmentsDriver    string `env:"ATTACHMENTS_DRIVER,default=Local" description:"the attachment driver, Local or AWSS3, empty disables attachments"`
	AttachmentsPath      string `env:"ATTACHMENTS_PATH,default=/var/lib/sensorhub/attachments" description:"base folder for the Local attachment driver"`
	AttachmentsS3Region  string `env:"ATTACHMENTS_S3_REGION,default=" description:"AWS region for the AWSS3 attachment driver"`
	AttachmentsS3Bucket  string `env:"ATTACHMENTS_S3_BUCKET,default=" description:"S3 bucket for the AWSS3 attachment driver"`
	AttachmentsS3ID      string `env:"ATTACHMENTS_S3_ACCESS_ID,default=" description:"access id for the AWSS3 attachment driver"`
	AttachmentsS3Key     string `env:"ATTACHMENTS_S3_ACCESS_KEY,default=" description:"access key for the AWSS3 attachment driver"`
	AttachmentsS3Prefix  string `env:"ATTACHMENTS_S3_KEY_PREFIX,default=" description:"key prefix for the AWSS3 attachment driver"`
	Port                 string `env:"PORT,default=3000" description:"the port to listen on"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)
	rlog := logger.Default()

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, "catalog")
	defer db.Close()

	store := sqlstore.New(db)
	groups := idl.NewClient(service.IdentityServiceURL, service.IdentityServiceToken)

	var notifiers []core.Notifier
	if len(service.KafkaBrokers) > 0 {
		kafkaNotifier := events.NewKafkaNotifier(strings.Split(service.KafkaBrokers, ","), service.KafkaTopic)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
	}

	var broker *mqtt.Broker
	if len(service.MQTTCertFile) > 0 {
		broker = mqtt.NewBroker(&mqtt.Builder{
			CACertFile: service.MQTTCACertFile,
			CertFile:   service.MQTTCertFile,
			KeyFile:    service.MQTTKeyFile,
		})
		notifiers = append(notifiers, broker)
	}

	attachmentDriver, err := attachments.NewDriver(attachments.Configuration{
		DriverType:         attachments.DriverType(service.AttachmentsDriver),
		LocalConfiguration: &attachments.LocalConfiguration{BasePath: service.AttachmentsPath},
		S3Configuration: &attachments.S3Configuration{
			AWSRegion:     service.AttachmentsS3Region,
			AWSBucketName: service.AttachmentsS3Bucket,
			AccessID:      service.AttachmentsS3ID,
			AccessKey:     service.AttachmentsS3Key,
			KeyPrefix:     service.AttachmentsS3Prefix,
		},
	})
	if err != nil {
		panic(err)
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
		PublicKeyDownloadURL: service.PublicKeyDownloadURL,
		Issuer:               service.Issuer,
		Accounts:             store,
	}))

	backend.New(&backend.Builder{
		Config:      configurationJSON,
		Store:       store,
		Router:      router,
		Groups:      groups,
		Notifiers:   notifiers,
		Attachments: attachmentDriver,
	})

	rlog.Infoln("listen on port :" + service.Port)
	if broker != nil {
		go http.ListenAndServe(":"+service.Port, router)
		broker.Run()
	} else {
		http.ListenAndServe(":"+service.Port, router)
	}
}
