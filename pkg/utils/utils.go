package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/holdno/snowFlakeByGo"

	"github.com/quka-ai/kbcore/pkg/errors"
)

var (
	// idWorker 全局唯一id生成器实例
	idWorker *snowFlakeByGo.Worker
	idOnce   sync.Once
)

func SetupIDWorker(clusterID int64) {
	idOnce.Do(func() {
		w, err := snowFlakeByGo.NewWorker(clusterID)
		if err != nil {
			panic(err)
		}
		idWorker = w
	})
}

func GenUniqID() int64 {
	SetupIDWorker(1)
	return idWorker.GetId()
}

func GenUniqIDStr() string {
	return strconv.FormatInt(GenUniqID(), 10)
}

// GenRandomID 用于请求 ID、查询 ID 等仅需要唯一性的场景
func GenRandomID() string {
	return uuid.NewString()
}

const seed = "1234567890qwertyuiopasdfghjklzxcvbnmQWERTYUIOPASDFGHJKLZXCVBNM"

// RandomStr 随机字符串
func RandomStr(l int) string {
	b := make([]byte, l)
	for i := range b {
		b[i] = seed[rand.IntN(len(seed))]
	}
	return string(b)
}

// SHA256Hex returns the lowercase hex sha256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func BindArgsWithGin(c *gin.Context, req interface{}) error {
	err := c.ShouldBindWith(req, binding.Default(c.Request.Method, c.ContentType()))
	if err != nil {
		return errors.New(fmt.Sprintf("Gin.ShouldBindWith.%s.%s", c.Request.Method, c.Request.URL.Path), "invalid argument", err).Code(http.StatusBadRequest)
	}
	return nil
}
