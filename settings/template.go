package settings

// Mask replaces the secret access key whenever a document leaves the server.
const Mask = "******"

type Cloudflare struct {
	AccountID       string `json:"accountId"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	BucketName      string `json:"bucketName"`
	PublicDomain    string `json:"publicDomain"`
}

type Upload struct {
	Path         string   `json:"path"`
	MaxSize      float64  `json:"maxSize"`
	AllowedTypes []string `json:"allowedTypes"`
}

type Storage struct {
	Cloudflare Cloudflare `json:"cloudflare"`
	Upload     Upload     `json:"upload"`
}

type Site struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Theme       string `json:"theme"`
	URL         string `json:"url"`
}

type Security struct {
	AdminPassword string `json:"adminPassword"`
}

type Images struct {
	Domains []string `json:"domains"`
	Formats []string `json:"formats"`
}

type App struct {
	Site     Site     `json:"site"`
	Security Security `json:"security"`
	Images   Images   `json:"images"`
}

// Document is the whole persisted configuration.
type Document struct {
	Storage Storage `json:"storage"`
	App     App     `json:"app"`
}

// Default returns the template document. Slices are freshly allocated on
// every call so callers may modify the result.
func Default() Document {
	return Document{
		Storage: Storage{
			Upload: Upload{
				Path:         "uploads/",
				MaxSize:      10,
				AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			},
		},
		App: App{
			Site: Site{
				Title:       "FreeImages",
				Description: "A simple image hosting service",
				Theme:       "light",
				URL:         "http://localhost:3000",
			},
			Security: Security{
				AdminPassword: "admin",
			},
			Images: Images{
				Domains: []string{},
				Formats: []string{"image/avif", "image/webp"},
			},
		},
	}
}

// Complete reports whether every credential needed to reach the bucket is set.
func (c Cloudflare) Complete() bool {
	return c.AccountID != "" &&
		c.AccessKeyID != "" &&
		c.SecretAccessKey != "" &&
		c.BucketName != "" &&
		c.PublicDomain != ""
}
