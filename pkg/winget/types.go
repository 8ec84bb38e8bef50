package winget

import "errors"

var (
	// ErrPackageNotFound is returned when the package has no manifest folder
	ErrPackageNotFound = errors.New("winget package not found")
	// ErrNoVersions is returned when the package folder holds no version folders
	ErrNoVersions = errors.New("winget package has no version folders")
	// ErrManifestNotFound is returned when no installer manifest file exists for a version
	ErrManifestNotFound = errors.New("winget installer manifest not found")
	// ErrNoInstaller is returned when the manifest lists no installers
	ErrNoInstaller = errors.New("winget manifest lists no installers")
)

// Package is the resolved latest release of a winget package for one architecture
type Package struct {
	ID              string `json:"id"`
	Version         string `json:"version"`
	Architecture    string `json:"architecture"`
	InstallerType   string `json:"installer_type"`
	InstallerURL    string `json:"installer_url"`
	InstallerSHA256 string `json:"installer_sha256"`
	Scope           string `json:"scope,omitempty"`
	ProductCode     string `json:"product_code,omitempty"`
}

// InstallerManifest is the subset of a winget installer manifest the service reads
type InstallerManifest struct {
	PackageIdentifier string      `yaml:"PackageIdentifier"`
	PackageVersion    string      `yaml:"PackageVersion"`
	InstallerType     string      `yaml:"InstallerType"`
	Scope             string      `yaml:"Scope"`
	ProductCode       string      `yaml:"ProductCode"`
	Installers        []Installer `yaml:"Installers"`
}

// Installer is one entry of the Installers list
type Installer struct {
	Architecture    string `yaml:"Architecture"`
	InstallerType   string `yaml:"InstallerType"`
	InstallerURL    string `yaml:"InstallerUrl"`
	InstallerSHA256 string `yaml:"InstallerSha256"`
	Scope           string `yaml:"Scope"`
	ProductCode     string `yaml:"ProductCode"`
}

// contentEntry is one item of the GitHub contents API listing
type contentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}
