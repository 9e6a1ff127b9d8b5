package portal

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/danthegoodman1/Provisio/csr"
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/lo"
)

// goccySerializer swaps echo's encoding/json for goccy/go-json.
type goccySerializer struct{}

func (goccySerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (goccySerializer) Deserialize(c echo.Context, i interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("error decoding body: %s", err)).SetInternal(err)
	}
	return nil
}

func (p *Portal) newEcho() *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true
	server.JSONSerializer = goccySerializer{}
	server.HTTPErrorHandler = customHTTPErrorHandler

	logConfig := middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339_nano}","id":"${id}","remote_ip":"${remote_ip}",` +
			`"host":"${host}","method":"${method}","uri":"${uri}","user_agent":"${user_agent}",` +
			`"status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}",` +
			`"bytes_in":${bytes_in},"bytes_out":${bytes_out},"proto":"${protocol}"}` + "\n",
		CustomTimeFormat: "2006-01-02 15:04:05.00000",
		Output:           os.Stdout,
	}
	server.Use(middleware.LoggerWithConfig(logConfig))
	server.Use(p.countRequests, p.injectFailures, requireBearer)

	server.GET(PathListCAs, p.listCAs)
	server.POST(PathRegisterDomain, p.registerDomain)
	server.POST(PathRequestCert, p.requestCertificate)
	return server
}

func customHTTPErrorHandler(err error, c echo.Context) {
	logger.Error().Err(err).Str("path", c.Path()).Msg("error handling request")
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if err := c.String(code, msg); err != nil {
		c.Logger().Error(err)
	}
}

func (p *Portal) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p.mu.Lock()
		p.requests[c.Request().URL.Path]++
		p.mu.Unlock()
		return next(c)
	}
}

func (p *Portal) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p.mu.Lock()
		fail := p.failNext > 0
		status := p.failStatus
		if fail {
			p.failNext--
		}
		p.mu.Unlock()
		if fail {
			return c.String(status, "injected failure")
		}
		return next(c)
	}
}

// requireBearer only checks a token is present, it does not validate it.
func requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, found := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			return c.String(http.StatusUnauthorized, "missing bearer token")
		}
		return next(c)
	}
}

func (p *Portal) listCAs(c echo.Context) error {
	return c.JSON(http.StatusOK, p.authorities)
}

func (p *Portal) registerDomain(c echo.Context) error {
	var req RegisterDomainRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if _, ok := p.authority(req.CAID, req.TemplateID); !ok {
		return c.JSON(http.StatusOK, APIResult{Message: fmt.Sprintf("Unknown CA %s", req.CAID)})
	}
	if strings.TrimSpace(req.Domain) == "" {
		return c.JSON(http.StatusOK, APIResult{Message: "Domain is required"})
	}
	if len(req.Owners) == 0 || lo.SomeBy(req.Owners, func(o Principal) bool { return o.ObjectID == "" }) {
		return c.JSON(http.StatusOK, APIResult{Message: "At least one owner with an object id is required"})
	}

	ok, msg := p.register(req)
	return c.JSON(http.StatusOK, APIResult{Success: ok, Message: msg})
}

func (p *Portal) requestCertificate(c echo.Context) error {
	var req CertificateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ca, ok := p.authority(req.CAID, req.TemplateID)
	if !ok {
		return c.JSON(http.StatusOK, APIResult{Message: fmt.Sprintf("Unknown CA %s", req.CAID)})
	}
	domain := strings.TrimPrefix(req.SubjectName, "CN=")
	if !p.Registered(req.CAID, domain) {
		return c.JSON(http.StatusOK, APIResult{Message: fmt.Sprintf("Domain %s is not registered with CA %s", domain, ca.CAFriendlyName)})
	}
	if req.ValidityInDays <= 0 || (ca.MaxCertificateValidityDays > 0 && req.ValidityInDays > ca.MaxCertificateValidityDays) {
		return c.JSON(http.StatusOK, APIResult{Message: fmt.Sprintf("Validity of %d days is not allowed by CA %s", req.ValidityInDays, ca.CAFriendlyName)})
	}

	der, err := p.sign(req)
	if err != nil {
		logger.Warn().Err(err).Str("domain", domain).Msg("refusing CSR")
		return c.JSON(http.StatusOK, APIResult{Message: err.Error()})
	}

	chain := string(csr.PEMEncode(csr.CertificateDER(der))) + string(p.CACertificatePEM())
	return c.JSON(http.StatusOK, APIResult{Success: true, Message: chain})
}
