package config

type AppConfig struct {
	RabbitMQURL    string `env:"RABBITMQ_URL"`
	SyncBatchSize  int    `env:"SYNC_BATCH_SIZE" envDefault:"100"`
	AttachmentDir  string `env:"ATTACHMENT_DIR" envDefault:"./attachments"`
	StorageBackend string `env:"ATTACHMENT_STORAGE" envDefault:"local"` // local, s3, r2
}

type DatabaseConfig struct {
	Host            string `env:"MAILMIRROR_POSTGRES_HOST,required"`
	Port            string `env:"MAILMIRROR_POSTGRES_PORT,required"`
	User            string `env:"MAILMIRROR_POSTGRES_USER,required"`
	DBName          string `env:"MAILMIRROR_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILMIRROR_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILMIRROR_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILMIRROR_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILMIRROR_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILMIRROR_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILMIRROR_POSTGRES_SSL_MODE" envDefault:"disable"`
}

type S3StorageConfig struct {
	Region          string `env:"AWS_S3_REGION"`
	AccessKeyID     string `env:"AWS_S3_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"AWS_S3_ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME_EMAIL_ATTACHMENT" envDefault:"attachments"`
}

type R2StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME_EMAIL_ATTACHMENT" envDefault:"attachments"`
}
