package static

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler serves the front-end bundle from a directory. Paths are cleaned and
// resolved inside the root; directories and dotfiles are never served.
type Handler struct {
	root http.Dir
}

// New 创建静态资源处理器
func New(root string) *Handler {
	return &Handler{root: http.Dir(root)}
}

// RegisterRoutes 注册静态资源路由，需最后注册以免遮挡接口路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/*", h.handleAsset)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "/index.html")
}

func (h *Handler) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + chi.URLParam(r, "*"))
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			http.NotFound(w, r)
			return
		}
	}
	h.serveFile(w, r, name)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := h.root.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}
