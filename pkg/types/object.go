package types

// StoredObject 对象存储中读取到的文件
type StoredObject struct {
	Body        []byte
	ContentType string
}
