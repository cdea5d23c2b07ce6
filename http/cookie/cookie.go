package cookie

// Cookie is a value to be rendered as a Set-Cookie header.
type Cookie struct {
	Name   string
	Value  string
	Path   string
	Domain string
	// MaxAge is the expiry offset in seconds, counted from the moment the response is
	// serialized. Zero makes the cookie expire immediately, just as negative values do.
	MaxAge   int
	Secure   bool
	HttpOnly bool
}

// New returns a cookie with the root path and no expiry offset.
func New(name, value string) Cookie {
	return Cookie{Name: name, Value: value, Path: "/"}
}

// Expired returns a cookie instructing the user-agent to drop the named cookie.
func Expired(name string) Cookie {
	c := New(name, "")
	c.MaxAge = -1
	return c
}

type Builder struct {
	cookie Cookie
}

// Build is a chainable constructor for cookies. A preferred way of instantiation
func Build(name, value string) Builder {
	return Builder{New(name, value)}
}

func (b Builder) Path(path string) Builder {
	b.cookie.Path = path
	return b
}

func (b Builder) Domain(domain string) Builder {
	b.cookie.Domain = domain
	return b
}

// MaxAge sets the expiry offset in seconds.
func (b Builder) MaxAge(seconds int) Builder {
	b.cookie.MaxAge = seconds
	return b
}

func (b Builder) Secure(secure bool) Builder {
	b.cookie.Secure = secure
	return b
}

func (b Builder) HttpOnly(httpOnly bool) Builder {
	b.cookie.HttpOnly = httpOnly
	return b
}

// Cookie returns the built cookie instance
func (b Builder) Cookie() Cookie {
	return b.cookie
}
