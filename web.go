package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

const aboutPage = `<h1>Sport Event Bot</h1>
<p>Chat-driven event scheduling for Telegram.</p>`

// newWebServer exposes the today's-events broadcast as an HTTP trigger,
// alongside a small about page.
func newWebServer(cfg *Config, service *EventService, tpls *Templates) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/publish-today-events", func(c *gin.Context) {
		count, err := service.PublishToday()
		if err != nil {
			log.Printf("web publish: %v", err)
			c.String(http.StatusInternalServerError, cfg.Messages.WebPublishError)
			return
		}
		if count == 0 {
			c.String(http.StatusOK, cfg.Messages.WebNoEvents)
			return
		}
		text, err := tpls.WebPublishSuccess(CountParams{Count: count})
		if err != nil {
			c.String(http.StatusInternalServerError, cfg.Messages.WebPublishError)
			return
		}
		c.String(http.StatusOK, text)
	})

	router.GET("/about", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, aboutPage)
	})

	return router
}
