package models

const (
	ChannelTypeText  = "text"
	ChannelTypeVoice = "voice"
)

type User struct {
	ID            int64  `json:"id,string,omitempty"`
	UserName      string `json:"userName,omitempty"`
	DisplayName   string `json:"displayName"`
	DateOfBirth   string `json:"dateOfBirth,omitempty"`
	Picture       string `json:"picture"`
	Discriminator string `json:"discriminator,omitempty"`
	Password      []byte `json:"-"`
}

type Server struct {
	ID      int64  `json:"id,string"`
	OwnerID int64  `json:"ownerID,string"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type Member struct {
	ServerID int64 `json:"serverID,string"`
	User     User  `json:"user"`
}

type Channel struct {
	ID       int64  `json:"id,string"`
	ServerID int64  `json:"serverID,string"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

type Message struct {
	ID        int64  `json:"id,string"`
	ChannelID int64  `json:"channelID,string"`
	UserID    int64  `json:"userID,string"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Edited    bool   `json:"edited"`
	User      User   `json:"user"`
}

// DirectMessage is a conversation between exactly two users. UserLow is
// always the smaller of the two IDs so a pair maps to a single row.
type DirectMessage struct {
	ID       int64 `json:"id,string"`
	UserLow  int64 `json:"userLow,string"`
	UserHigh int64 `json:"userHigh,string"`
	Other    User  `json:"other"`
}

type DirectMessageMessage struct {
	ID        int64  `json:"id,string"`
	DmID      int64  `json:"dmID,string"`
	UserID    int64  `json:"userID,string"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	User      User   `json:"user"`
}

type ConfigFile struct {
	Address           string `env:"ADDRESS"`
	Port              string `env:"PORT"`
	BehindNginx       bool   `env:"BEHIND_NGINX"`
	TlsCert           string `env:"TLS_CERT"`
	TlsKey            string `env:"TLS_KEY"`
	Cors              bool   `env:"CORS"`
	CorsOrigins       string `env:"CORS_ORIGINS"`
	PrintHttpRequests bool   `env:"PRINT_HTTP_REQUESTS"`
	LogToFile         bool   `env:"LOG_TO_FILE"`
	LogLevel          string `env:"LOG_LEVEL"`
	PublicDir         string `env:"PUBLIC_DIR"`
	ConvertImages     bool   `env:"CONVERT_IMAGES"`

	JwtSecret         string `env:"JWT_SECRET"`
	SnowflakeWorkerID int64  `env:"SNOWFLAKE_WORKER_ID"`

	SelfContained bool   `env:"SELF_CONTAINED"`
	SqlitePath    string `env:"SQLITE_PATH"`
	DbUser        string `env:"DB_USER"`
	DbPassword    string `env:"DB_PASSWORD"`
	DbAddress     string `env:"DB_ADDRESS"`
	DbPort        string `env:"DB_PORT"`
	DbDatabase    string `env:"DB_DATABASE"`
	RedisAddress  string `env:"REDIS_ADDRESS"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	KeyAuthName    string `env:"KEYAUTH_NAME"`
	KeyAuthOwnerID string `env:"KEYAUTH_OWNER_ID"`
	KeyAuthVersion string `env:"KEYAUTH_VERSION"`
	KeyAuthURL     string `env:"KEYAUTH_URL"`

	HwidResetEnabled bool   `env:"HWID_RESET_ENABLED"`
	DownloadURLBase  string `env:"DOWNLOAD_URL_BASE"`
	DownloadFileID   string `env:"DOWNLOAD_FILE_ID"`
	DownloadExt      string `env:"DOWNLOAD_EXT"`
	DownloadFilename string `env:"DOWNLOAD_FILENAME"`
}
