package config

import "strings"

// AppVersion is the version of the application, set at build time with -ldflags.
var AppVersion = "0.1.0"

// AppName is the name of the application.
const AppName = "InstaRatio"

// AppID is the Fyne application ID.
const AppID = "com.dixieflatline76.instaratio"

// LogSubDir is the sub directory for the log files under the user cache dir.
var LogSubDir = AppName

// LogExt is the extension for the log files.
var LogExt = ".log"

// ConfigDirName is the directory under the user's home holding CLI settings.
var ConfigDirName = "." + strings.ToLower(AppName)
