package bloggy

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
)

var NowFunc func() time.Time = time.Now

var helpers template.FuncMap = template.FuncMap{
	"daysAgo": func(t time.Time) string {
		now := NowFunc()
		days := int(now.Sub(t).Hours() / 24)

		switch {
		case days < 1:
			return "today"
		case days == 1:
			return "yesterday"
		}
		return strconv.Itoa(days) + " days ago"
	},
	"date": func(t time.Time) string {
		return t.Format("Jan 2, 2006")
	},
	"title":    strings.Title,
	"markdown": renderBody,
	"comment":  renderComment,
	"dict": func(values ...interface{}) (map[string]interface{}, error) {
		if len(values)%2 != 0 {
			return nil, fmt.Errorf("invalid dict call, odd number of arguments")
		}

		dict := make(map[string]interface{}, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			k, ok := values[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings")
			}
			v := values[i+1]
			dict[k] = v
		}

		return dict, nil
	},
}
