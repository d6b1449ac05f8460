package mock

//go:generate mockgen -package mock -destination filesystem.go github.com/buildbarn/bb-compiler-store/pkg/filesystem Directory,FileAppender,FileReader
